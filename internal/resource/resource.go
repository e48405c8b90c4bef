// Package resource downloads and caches the media files behind spine tracks.
package resource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/yuanying/audiobook/internal/logging"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/spine"
)

var (
	// ErrUnavailable reports a non-2xx response for a track.
	ErrUnavailable = errors.New("resource unavailable")
	// ErrLocked reports that another process holds the download lock until ctx expired.
	ErrLocked = errors.New("resource locked")
)

const lockRetryDelay = 50 * time.Millisecond

// Tags are written into downloaded MP3 files.
type Tags struct {
	Album  string
	Artist string
}

// Cache creates resource handles backed by files under Dir.
type Cache struct {
	Dir string
	// Base resolves relative hrefs; nil leaves them as is.
	Base   *url.URL
	Client *http.Client
	Logger *slog.Logger
	Tags   Tags
}

// ForBook returns a copy of the cache rooted in a subdirectory private to the book id and
// tagging MP3 files with tags.
func (c *Cache) ForBook(id string, tags Tags) *Cache {
	sum := sha256.Sum256([]byte(id))
	cp := *c
	cp.Dir = filepath.Join(c.Dir, hex.EncodeToString(sum[:8]))
	cp.Tags = tags
	return &cp
}

// Factory adapts the cache to spine.BuildOptions.NewResource.
func (c *Cache) Factory() spine.ResourceFactory {
	return func(item manifest.ReadingOrderItem, token string) (spine.Resource, error) {
		return c.Handle(item, token)
	}
}

// Handle returns the handle for item. No I/O happens until Fetch or Probe.
func (c *Cache) Handle(item manifest.ReadingOrderItem, token string) (*Handle, error) {
	if c.Dir == "" {
		return nil, errors.New("resource cache directory not set")
	}
	u, err := c.resolve(item.Href)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(item.Href))
	key := hex.EncodeToString(sum[:])
	return &Handle{
		cache:     c,
		key:       key,
		href:      item.Href,
		url:       u,
		title:     item.Title,
		mediaType: item.Type,
		token:     token,
		path:      filepath.Join(c.Dir, key+extension(item)),
	}, nil
}

func (c *Cache) resolve(href string) (*url.URL, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("parse href %q: %w", href, err)
	}
	if c.Base != nil {
		u = c.Base.ResolveReference(u)
	}
	return u, nil
}

func (c *Cache) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *Cache) logger() *slog.Logger {
	return logging.OrNop(c.Logger)
}

// Handle is a lazily downloaded track file. It implements spine.Resource.
type Handle struct {
	cache     *Cache
	key       string
	href      string
	url       *url.URL
	title     string
	mediaType string
	token     string
	path      string
}

// Key is the hex SHA-256 of the manifest href.
func (h *Handle) Key() string { return h.key }

// Href returns the manifest href.
func (h *Handle) Href() string { return h.href }

// URL returns the resolved download URL.
func (h *Handle) URL() string { return h.url.String() }

// Path returns the local cache path, whether or not it exists yet.
func (h *Handle) Path() string { return h.path }

// Cached reports whether the file has been downloaded.
func (h *Handle) Cached() bool {
	info, err := os.Stat(h.path)
	return err == nil && info.Mode().IsRegular()
}

// Fetch downloads the file unless it is already cached and returns its local path.
// Concurrent fetches of the same file, across processes, are serialized by a lock file.
func (h *Handle) Fetch(ctx context.Context) (string, error) {
	if h.Cached() {
		return h.path, nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	lock, err := acquire(ctx, h.path, h.href)
	if err != nil {
		return "", err
	}
	defer lock.Unlock()

	// another process may have finished while we waited
	if h.Cached() {
		return h.path, nil
	}
	if err := h.download(ctx); err != nil {
		return "", err
	}
	if h.isMP3() {
		if err := writeTags(h.path, h.title, h.cache.Tags); err != nil {
			h.cache.logger().Warn("failed to tag mp3",
				slog.String(logging.FieldHref, h.href), logging.Error(err))
		}
	}
	h.cache.logger().Debug("track downloaded",
		slog.String(logging.FieldHref, h.href), slog.String("path", h.path))
	return h.path, nil
}

// acquire takes the lock file guarding path, waiting until ctx expires.
func acquire(ctx context.Context, path, href string) (*flock.Flock, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLocked, href, err)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, href)
	}
	return lock, nil
}

func (h *Handle) download(ctx context.Context) error {
	resp, err := h.do(ctx, http.MethodGet)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", h.href, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, h.path); err != nil {
		return fmt.Errorf("store %s: %w", h.href, err)
	}
	return nil
}

// Probe checks with a HEAD request that the track is retrievable.
func (h *Handle) Probe(ctx context.Context) error {
	resp, err := h.do(ctx, http.MethodHead)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (h *Handle) do(ctx context.Context, method string) (*http.Response, error) {
	if h.url.Scheme != "http" && h.url.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s: unsupported scheme %q", ErrUnavailable, h.href, h.url.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.cache.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, h.href, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: %s", ErrUnavailable, method, h.href, resp.Status)
	}
	return resp, nil
}

// Delete removes the cached file. A file that was never downloaded is not an error.
func (h *Handle) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", h.href, err)
	}
	if err := os.Remove(h.path + ".lock"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete lock for %s: %w", h.href, err)
	}
	return nil
}

func (h *Handle) isMP3() bool {
	return h.mediaType == "audio/mpeg" || strings.EqualFold(filepath.Ext(h.path), ".mp3")
}

func extension(item manifest.ReadingOrderItem) string {
	p, _ := manifest.SplitFragment(item.Href)
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if ext := path.Ext(p); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	switch item.Type {
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	}
	return ".bin"
}

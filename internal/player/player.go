// Package player drives a Mopidy server over JSON-RPC to play an audiobook spine.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"

	rpc "github.com/ybbus/jsonrpc"

	"github.com/yuanying/audiobook/internal/logging"
	"github.com/yuanying/audiobook/internal/position"
	"github.com/yuanying/audiobook/internal/spine"
)

var (
	// ErrNotReady is returned when DRM verification has not succeeded.
	ErrNotReady = errors.New("playback not ready")
	// ErrNotPlaying is returned when Mopidy has no current track.
	ErrNotPlaying = errors.New("nothing playing")
)

// Book is the part of an audiobook the player needs.
type Book interface {
	ID() string
	Spine() *spine.Spine
	PlaybackReady() bool
	// Download stores every track locally and returns the paths in spine order.
	Download(ctx context.Context) ([]string, error)
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	// TrackURI maps a downloaded track file to the URI handed to Mopidy. The default is a
	// file:// URL, which suits a Mopidy server sharing the local disk.
	TrackURI func(path string) string
}

// Client is the client for a Mopidy server.
type Client struct {
	rpcClient rpc.RPCClient
	logger    *slog.Logger
	trackURI  func(path string) string
}

type tlTrack struct {
	TLID int `json:"tlid"`
}

type payloadTracklistAdd struct {
	URIs []string `json:"uris"`
}

type payloadPlay struct {
	TLID int `json:"tlid"`
}

type payloadSeek struct {
	TimePosition int64 `json:"time_position"`
}

// NewClient returns a client for the JSON-RPC endpoint, e.g. http://host:6680/mopidy/rpc.
func NewClient(endpoint string, opts Options) *Client {
	var rpcClient rpc.RPCClient
	if opts.HTTPClient != nil {
		rpcClient = rpc.NewClientWithOpts(endpoint, &rpc.RPCClientOpts{HTTPClient: opts.HTTPClient})
	} else {
		rpcClient = rpc.NewClient(endpoint)
	}
	uri := opts.TrackURI
	if uri == nil {
		uri = defaultTrackURI
	}
	return &Client{
		rpcClient: rpcClient,
		logger:    logging.NewComponentLogger(opts.Logger, "player"),
		trackURI:  uri,
	}
}

func defaultTrackURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// call performs one JSON-RPC request. The transport does not take a context, so ctx is only
// checked before the request is sent.
func (c *Client) call(ctx context.Context, method string, params ...any) (*rpc.RPCResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.rpcClient.Call(method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, resp.Error)
	}
	return resp, nil
}

// Load downloads the book's tracks, replaces the Mopidy tracklist with them and starts playback
// at pos.
func (c *Client) Load(ctx context.Context, book Book, pos position.Position) error {
	if !book.PlaybackReady() {
		return fmt.Errorf("%w: %s", ErrNotReady, book.ID())
	}
	sp := book.Spine()
	if pos.IsZero() {
		pos = position.Start(sp)
	}
	pos, err := pos.Rebase(sp)
	if err != nil {
		return err
	}

	paths, err := book.Download(ctx)
	if err != nil {
		return err
	}
	uris := make([]string, 0, len(paths))
	for _, p := range paths {
		uris = append(uris, c.trackURI(p))
	}

	if _, err := c.call(ctx, "core.tracklist.clear"); err != nil {
		return err
	}
	resp, err := c.call(ctx, "core.tracklist.add", &payloadTracklistAdd{URIs: uris})
	if err != nil {
		return err
	}
	var added []tlTrack
	if err := resp.GetObject(&added); err != nil {
		return fmt.Errorf("core.tracklist.add: decode result: %w", err)
	}
	if len(added) != len(uris) {
		return fmt.Errorf("core.tracklist.add: added %d of %d tracks", len(added), len(uris))
	}

	if _, err := c.call(ctx, "core.playback.play", &payloadPlay{TLID: added[pos.Index()].TLID}); err != nil {
		return err
	}
	if pos.Offset() > 0 {
		if _, err := c.call(ctx, "core.playback.seek", &payloadSeek{TimePosition: pos.Offset().Milliseconds()}); err != nil {
			return err
		}
	}
	c.logger.Info("playback started",
		slog.String(logging.FieldBookID, book.ID()),
		slog.String("position", pos.String()))
	return nil
}

// Position maps Mopidy's current tracklist index and time position onto the book's spine.
func (c *Client) Position(ctx context.Context, book Book) (position.Position, error) {
	resp, err := c.call(ctx, "core.tracklist.index")
	if err != nil {
		return position.Position{}, err
	}
	if resp.Result == nil {
		return position.Position{}, ErrNotPlaying
	}
	index, err := resp.GetInt()
	if err != nil {
		return position.Position{}, fmt.Errorf("core.tracklist.index: %w", err)
	}

	resp, err = c.call(ctx, "core.playback.get_time_position")
	if err != nil {
		return position.Position{}, err
	}
	ms, err := resp.GetInt()
	if err != nil {
		return position.Position{}, fmt.Errorf("core.playback.get_time_position: %w", err)
	}
	return position.New(book.Spine(), int(index), millis(ms))
}

// State returns the Mopidy playback state: "playing", "paused" or "stopped".
func (c *Client) State(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "core.playback.get_state")
	if err != nil {
		return "", err
	}
	return resp.GetString()
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.call(ctx, "core.playback.pause")
	return err
}

// Resume resumes paused playback.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.call(ctx, "core.playback.resume")
	return err
}

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.call(ctx, "core.playback.stop")
	return err
}

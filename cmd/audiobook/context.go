package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/yuanying/audiobook/internal/audiobook"
	"github.com/yuanying/audiobook/internal/config"
	"github.com/yuanying/audiobook/internal/library"
	"github.com/yuanying/audiobook/internal/logging"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/resource"
)

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string
	tokenFlag     *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
		tokenFlag:     tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = *c.logLevelFlag
	}
	if c.logFormatFlag != nil && strings.TrimSpace(*c.logFormatFlag) != "" {
		format = *c.logFormatFlag
	}
	return logging.New(logging.Options{Level: level, Format: format, Output: cmd.ErrOrStderr()})
}

// session bundles what most commands need: configuration, a logger and the open catalog.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *library.Store
	client *http.Client
	// token is the --token flag; it overrides the token stored with an entry.
	token string
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := library.Open(ctx, cfg.Paths.LibraryDir)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer store.Close()

	var token string
	if c.tokenFlag != nil {
		token = strings.TrimSpace(*c.tokenFlag)
	}
	return fn(ctx, &session{
		cfg:    cfg,
		logger: logger,
		store:  store,
		client: &http.Client{Timeout: cfg.RequestTimeout()},
		token:  token,
	})
}

// decode parses a manifest and, when it has no table of contents of its own, takes one from
// the optional navigation document.
func (s *session) decode(raw, nav []byte) (*manifest.Document, error) {
	doc, err := manifest.Decode(raw)
	if err != nil {
		return nil, err
	}
	if len(nav) == 0 || len(doc.TOC) > 0 {
		return doc, nil
	}
	toc, err := manifest.ParseNavDocument(nav)
	if err != nil {
		return nil, fmt.Errorf("navigation document: %w", err)
	}
	return doc.WithTOC(toc), nil
}

// bookOptions prefers the --token flag, then the token stored with the entry, then the
// configured one.
func (s *session) bookOptions(doc *manifest.Document, stored string) audiobook.Options {
	token := s.token
	if token == "" {
		token = stored
	}
	if token == "" {
		token = s.cfg.Network.BearerToken
	}
	return audiobook.Options{
		Token: token,
		Resources: &resource.Cache{
			Dir:    s.cfg.Paths.CacheDir,
			Base:   baseURL(doc),
			Client: s.client,
			Logger: s.logger,
		},
		Logger: s.logger,
	}
}

// reopen rebuilds a catalogued book with its persisted DRM status and token. No verification
// runs.
func (s *session) reopen(ctx context.Context, id string) (*audiobook.Audiobook, *library.Entry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.decode(entry.Manifest, entry.Nav)
	if err != nil {
		return nil, nil, fmt.Errorf("decode stored manifest of %s: %w", id, err)
	}
	opts := s.bookOptions(doc, entry.Token)
	status := entry.DRMStatus
	opts.RestoreStatus = &status
	b, err := audiobook.Open(ctx, doc, opts)
	if err != nil {
		return nil, nil, err
	}
	return b, entry, nil
}

// baseURL resolves relative hrefs against the manifest's absolute self link, if any.
func baseURL(doc *manifest.Document) *url.URL {
	self, ok := doc.Link("self")
	if !ok {
		return nil
	}
	u, err := url.Parse(self.Href)
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

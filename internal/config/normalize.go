package config

import (
	"fmt"
	"os"
	"strings"
)

// EnvBearerToken supplies network.bearer_token when the file leaves it empty.
const EnvBearerToken = "AUDIOBOOK_BEARER_TOKEN"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNetwork()
	c.normalizeLogging()
	c.Player.MopidyURL = strings.TrimSpace(c.Player.MopidyURL)
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		c.Paths.LibraryDir = defaultLibraryDir
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	var err error
	if c.Paths.LibraryDir, err = ExpandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.CacheDir, err = ExpandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNetwork() {
	c.Network.BearerToken = strings.TrimSpace(c.Network.BearerToken)
	if c.Network.BearerToken == "" {
		c.Network.BearerToken = strings.TrimSpace(os.Getenv(EnvBearerToken))
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

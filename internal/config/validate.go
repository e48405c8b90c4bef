package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	if err := c.validatePlayer(); err != nil {
		return err
	}
	return c.validateCover()
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if c.Network.RequestTimeout <= 0 {
		return errors.New("network.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validatePlayer() error {
	if c.Player.MopidyURL == "" {
		return nil
	}
	u, err := url.Parse(c.Player.MopidyURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("player.mopidy_url: invalid url %q", c.Player.MopidyURL)
	}
	return nil
}

func (c *Config) validateCover() error {
	if c.Cover.MaxWidth <= 0 {
		return errors.New("cover.max_width must be positive")
	}
	if c.Cover.JPEGQuality < 1 || c.Cover.JPEGQuality > 100 {
		return fmt.Errorf("cover.jpeg_quality must be between 1 and 100, got %d", c.Cover.JPEGQuality)
	}
	return nil
}

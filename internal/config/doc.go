// Package config loads the audiobook CLI configuration from TOML.
//
// Load starts from Default, overlays the file found at the given path (or
// ~/.config/audiobook/config.toml, then ./audiobook.toml), applies environment
// fallbacks, expands paths and validates the result.
package config

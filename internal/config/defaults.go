package config

const (
	defaultLibraryDir     = "~/.local/share/audiobook"
	defaultCacheDir       = "~/.cache/audiobook"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultRequestTimeout = 30
	defaultMopidyURL      = "http://127.0.0.1:6680/mopidy/rpc"
	defaultCoverMaxWidth  = 600
	defaultJPEGQuality    = 85
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			CacheDir:   defaultCacheDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Network: Network{
			RequestTimeout: defaultRequestTimeout,
		},
		Player: Player{
			MopidyURL: defaultMopidyURL,
		},
		Cover: Cover{
			MaxWidth:    defaultCoverMaxWidth,
			JPEGQuality: defaultJPEGQuality,
		},
	}
}

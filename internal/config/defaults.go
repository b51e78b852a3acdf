package config

const (
	defaultBaseURL             = "http://localhost:8000/api"
	defaultLanguage            = "auto"
	defaultStorageBackend      = BackendSQLite
	defaultStateDir            = "~/.local/share/scribe"
	defaultPollIntervalSeconds = 5
	defaultCallbackBind        = "127.0.0.1:8976"
	defaultCallbackPath        = "/github/callback"
	defaultOAuthTimeoutSeconds = 300
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Storage backends accepted by storage.backend.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:  defaultBaseURL,
			Language: defaultLanguage,
		},
		Storage: Storage{
			Backend:  defaultStorageBackend,
			StateDir: defaultStateDir,
		},
		Poller: Poller{
			IntervalSeconds: defaultPollIntervalSeconds,
		},
		OAuth: OAuth{
			CallbackBind:   defaultCallbackBind,
			CallbackPath:   defaultCallbackPath,
			TimeoutSeconds: defaultOAuthTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

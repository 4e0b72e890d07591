package config

const (
	defaultDataDir           = "~/.local/share/crawlq"
	defaultLogDir            = "~/.local/share/crawlq/logs"
	defaultRootURL           = "https://www.imdb.com/feature/genre/"
	defaultUserAgent         = "crawlq/dev (+https://github.com/crawlq/crawlq)"
	defaultRequestTimeout    = 30
	defaultFetchAttempts     = 3
	defaultRetryBackoffMS    = 500
	defaultMaxPages          = 0
	defaultWorkers           = 1
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultRateCapacity      = 5
	defaultRateRefill        = 1.0
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultRetentionDays     = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Crawl: Crawl{
			RootURL:        defaultRootURL,
			UserAgent:      defaultUserAgent,
			RequestTimeout: defaultRequestTimeout,
			FetchAttempts:  defaultFetchAttempts,
			RetryBackoffMS: defaultRetryBackoffMS,
			MaxPages:       defaultMaxPages,
		},
		Workflow: Workflow{
			Workers:           defaultWorkers,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		RateLimit: RateLimit{
			Capacity:        defaultRateCapacity,
			RefillPerSecond: defaultRateRefill,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Retention: Retention{
			CompletedDays: defaultRetentionDays,
		},
	}
}

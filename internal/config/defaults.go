package config

const (
	defaultConfigPath           = "~/.config/newsboy/config.toml"
	defaultDataDir              = "~/.local/share/newsboy"
	defaultLogDir               = "~/.local/share/newsboy/logs"
	defaultDatabaseName         = "newsboy.db"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultTriggerHour          = 0
	defaultTriggerMinute        = 0
	defaultTickSeconds          = 60
	defaultTimezone             = "Local"
	defaultFetchTimeoutSeconds  = 30
	defaultIngestConcurrency    = 4
	defaultUserAgent            = "Newsboy/1.0 (RSS Reader)"
	defaultExcerptMaxChars      = 500
	defaultWordsPerMinute       = 200
	defaultMaxDaily             = 24
	defaultInitialCount         = 10
	defaultPerHourRate          = 2
	defaultLookbackDays         = 7
	defaultFeaturedCount        = 3
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "anthropic/claude-3.5-haiku"
	defaultLLMReferer           = "https://github.com/newsboy/newsboy"
	defaultLLMTitle             = "Newsboy"
	defaultLLMTimeoutSeconds    = 60
	defaultIllustrationBaseURL  = "https://api.replicate.com/v1"
	defaultIllustrationModel    = "stability-ai/sdxl"
	defaultIllustrationDelayMS  = 2000
	defaultIllustrationRetries  = 3
	defaultIllustrationTimeout  = 120
	defaultIllustrationBudget   = 300
	defaultRedisAddr            = "localhost:6379"
	defaultCacheTTLSeconds      = 300
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Schedule: Schedule{
			TriggerHour:   defaultTriggerHour,
			TriggerMinute: defaultTriggerMinute,
			TickSeconds:   defaultTickSeconds,
			Timezone:      defaultTimezone,
		},
		Ingest: Ingest{
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			Concurrency:         defaultIngestConcurrency,
			UserAgent:           defaultUserAgent,
			ExcerptMaxChars:     defaultExcerptMaxChars,
			WordsPerMinute:      defaultWordsPerMinute,
		},
		Drip: Drip{
			MaxDaily:     defaultMaxDaily,
			InitialCount: defaultInitialCount,
			PerHourRate:  defaultPerHourRate,
			LookbackDays: defaultLookbackDays,
		},
		Briefing: Briefing{
			FeaturedCount: defaultFeaturedCount,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Illustration: Illustration{
			BaseURL:        defaultIllustrationBaseURL,
			Model:          defaultIllustrationModel,
			DelayMillis:    defaultIllustrationDelayMS,
			MaxRetries:     defaultIllustrationRetries,
			TimeoutSeconds: defaultIllustrationTimeout,

			GenerateTimeoutSeconds: defaultIllustrationBudget,
		},
		Cache: Cache{
			RedisAddr:  defaultRedisAddr,
			TTLSeconds: defaultCacheTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Pipeline:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

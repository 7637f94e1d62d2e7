package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateDrip(); err != nil {
		return err
	}
	if err := c.validateIllustration(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.TriggerHour < 0 || c.Schedule.TriggerHour > 23 {
		return errors.New("schedule.trigger_hour must be between 0 and 23")
	}
	if c.Schedule.TriggerMinute < 0 || c.Schedule.TriggerMinute > 59 {
		return errors.New("schedule.trigger_minute must be between 0 and 59")
	}
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name != "" && !strings.EqualFold(name, "local") {
		if _, err := time.LoadLocation(name); err != nil {
			return fmt.Errorf("schedule.timezone %q: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"schedule.tick_seconds":                 c.Schedule.TickSeconds,
		"ingest.fetch_timeout_seconds":          c.Ingest.FetchTimeoutSeconds,
		"ingest.concurrency":                    c.Ingest.Concurrency,
		"ingest.excerpt_max_chars":              c.Ingest.ExcerptMaxChars,
		"ingest.words_per_minute":               c.Ingest.WordsPerMinute,
		"llm.timeout_seconds":                   c.LLM.TimeoutSeconds,
		"notifications.request_timeout":         c.Notifications.RequestTimeout,
		"illustration.timeout_seconds":          c.Illustration.TimeoutSeconds,
		"illustration.generate_timeout_seconds": c.Illustration.GenerateTimeoutSeconds,
		"briefing.featured_count":               c.Briefing.FeaturedCount,
		"drip.lookback_days":                    c.Drip.LookbackDays,
		"drip.per_hour_rate":                    c.Drip.PerHourRate,
		"drip.max_daily":                        c.Drip.MaxDaily,
	})
}

func (c *Config) validateDrip() error {
	if c.Drip.InitialCount < 0 {
		return errors.New("drip.initial_count must be >= 0")
	}
	// revealHour must stay within the day.
	if c.Drip.MaxDaily > c.Drip.InitialCount {
		lastHour := (c.Drip.MaxDaily-1-c.Drip.InitialCount)/c.Drip.PerHourRate + 1
		if lastHour > 23 {
			return fmt.Errorf("drip settings reveal the last item at hour %d; lower drip.max_daily or raise drip.per_hour_rate", lastHour)
		}
	}
	return nil
}

func (c *Config) validateIllustration() error {
	if c.Illustration.DelayMillis < 0 {
		return errors.New("illustration.delay_ms must be >= 0")
	}
	if c.Illustration.MaxRetries < 0 {
		return errors.New("illustration.max_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Cache.RedisAddr) == "" {
		return errors.New("cache.redis_addr must be set when cache.enabled is true")
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("cache.ttl_seconds must be positive when cache.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, database, and bind address configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	DatabasePath string `toml:"database_path"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// Schedule controls when the daemon fires the daily pipeline.
type Schedule struct {
	TriggerHour   int    `toml:"trigger_hour"`
	TriggerMinute int    `toml:"trigger_minute"`
	TickSeconds   int    `toml:"tick_seconds"`
	Timezone      string `toml:"timezone"`
}

// Ingest contains feed retrieval settings.
type Ingest struct {
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	Concurrency         int    `toml:"concurrency"`
	UserAgent           string `toml:"user_agent"`
	ExcerptMaxChars     int    `toml:"excerpt_max_chars"`
	WordsPerMinute      int    `toml:"words_per_minute"`
}

// Drip contains the release curve constants used by the scheduler.
type Drip struct {
	MaxDaily     int `toml:"max_daily"`
	InitialCount int `toml:"initial_count"`
	PerHourRate  int `toml:"per_hour_rate"`
	LookbackDays int `toml:"lookback_days"`
}

// Briefing contains daily briefing settings.
type Briefing struct {
	FeaturedCount int `toml:"featured_count"`
}

// LLM contains chat completion settings shared by the summarizer and tuning parser.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Illustration contains settings for generated crayon illustrations.
type Illustration struct {
	Enabled        bool   `toml:"enabled"`
	APIToken       string `toml:"api_token"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	DelayMillis    int    `toml:"delay_ms"`
	MaxRetries     int    `toml:"max_retries"`
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// GenerateTimeoutSeconds bounds one illustration end to end, including
	// rate-limit backoff and prediction polling.
	GenerateTimeoutSeconds int `toml:"generate_timeout_seconds"`
}

// Cache contains optional Redis cache settings for API projections.
type Cache struct {
	Enabled       bool   `toml:"enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Pipeline       bool   `toml:"pipeline"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Newsboy.
//
// Configuration sections by subsystem:
//   - Paths: data directory, database, and API bind address
//   - Schedule: daily trigger time and tick interval
//   - Ingest: feed fetch timeouts, concurrency, and excerpt handling
//   - Drip: daily quota and release curve
//   - Briefing: number of featured stories
//   - LLM: chat completion settings for briefings and tuning
//   - Illustration: crayon illustration generation
//   - Cache: Redis cache for API reads
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Schedule      Schedule      `toml:"schedule"`
	Ingest        Ingest        `toml:"ingest"`
	Drip          Drip          `toml:"drip"`
	Briefing      Briefing      `toml:"briefing"`
	LLM           LLM           `toml:"llm"`
	Illustration  Illustration  `toml:"illustration"`
	Cache         Cache         `toml:"cache"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("newsboy.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if dbDir := filepath.Dir(c.Paths.DatabasePath); dbDir != "" && dbDir != "." {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Location resolves the configured schedule timezone. Unknown names fall back to time.Local
// after validation has already rejected them, so callers never receive nil.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// TickInterval returns the daemon tick interval.
func (c *Config) TickInterval() time.Duration {
	if c.Schedule.TickSeconds <= 0 {
		return time.Duration(defaultTickSeconds) * time.Second
	}
	return time.Duration(c.Schedule.TickSeconds) * time.Second
}

// FetchTimeout returns the per-feed retrieval timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Ingest.FetchTimeoutSeconds) * time.Second
}

// IllustrationDelay returns the pause inserted between illustration calls.
func (c *Config) IllustrationDelay() time.Duration {
	return time.Duration(c.Illustration.DelayMillis) * time.Millisecond
}

// CacheTTL returns the lifetime of cached API projections.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved chat completion settings.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// LLMEnabled reports whether an API key is available for chat completions.
func (c *Config) LLMEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// IllustrationEnabled reports whether illustration generation can run.
func (c *Config) IllustrationEnabled() bool {
	return c.Illustration.Enabled && strings.TrimSpace(c.Illustration.APIToken) != ""
}

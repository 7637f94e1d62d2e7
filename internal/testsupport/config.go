package testsupport

import (
	"path/filepath"
	"testing"

	"newsboy/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The schedule runs in UTC so date arithmetic in tests is deterministic.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "data", "newsboy.db")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Schedule.Timezone = "UTC"
	cfgVal.LLM.APIKey = ""
	cfgVal.Illustration.APIToken = ""
	cfgVal.Illustration.DelayMillis = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithLLM points the LLM client at baseURL with a test key.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = "test"
		b.cfg.LLM.BaseURL = baseURL
	}
}

// WithIllustration enables illustrations against baseURL with a test token.
func WithIllustration(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Illustration.Enabled = true
		b.cfg.Illustration.APIToken = "test"
		b.cfg.Illustration.BaseURL = baseURL
	}
}

// WithDrip overrides the drip curve.
func WithDrip(maxDaily, initialCount, perHourRate int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drip.MaxDaily = maxDaily
		b.cfg.Drip.InitialCount = initialCount
		b.cfg.Drip.PerHourRate = perHourRate
	}
}

// WithTrigger overrides the daily trigger time.
func WithTrigger(hour, minute int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedule.TriggerHour = hour
		b.cfg.Schedule.TriggerMinute = minute
	}
}

// WithAPIToken requires bearer auth on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

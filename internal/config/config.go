// Package config loads the application configuration from defaults, an
// optional TOML file, and QUORUMREVIEW_-prefixed environment variables, in
// that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/quorumreview/internal/jobqueue"
	"github.com/quorumreview/internal/oracle"
	"github.com/quorumreview/internal/retry"
	"github.com/quorumreview/internal/strategy"
)

// General holds process-wide settings.
type General struct {
	LogLevel  string `koanf:"log_level" json:"log_level"`
	LogPretty bool   `koanf:"log_pretty" json:"log_pretty"`
}

// Review tunes the review pipeline itself.
type Review struct {
	// Temperatures is the sampling spread for parallel passes; the first
	// entry drives sequential and batched passes.
	Temperatures []float64 `koanf:"temperatures" json:"temperatures"`

	// MergeTemperature is the fixed sampling setting for reconciliation
	// calls. Keep it at zero so identical inputs merge identically.
	MergeTemperature float64 `koanf:"merge_temperature" json:"merge_temperature"`

	// MaxTokens caps each oracle completion.
	MaxTokens int `koanf:"max_tokens" json:"max_tokens"`

	// Redact controls secret scrubbing of prompt-bound text.
	Redact bool `koanf:"redact" json:"redact"`
}

// Server configures the HTTP API.
type Server struct {
	Port int `koanf:"port" json:"port"`
}

// Database points at the Postgres instance backing the state store and the
// job queue. An empty URL falls back to DATABASE_URL / .env resolution.
type Database struct {
	URL string `koanf:"url" json:"-"`
}

// Config is the full application configuration.
type Config struct {
	General  General              `koanf:"general" json:"general"`
	Oracle   oracle.Options       `koanf:"oracle" json:"oracle"`
	Review   Review               `koanf:"review" json:"review"`
	Strategy strategy.Thresholds  `koanf:"strategy" json:"strategy"`
	Retry    retry.Config         `koanf:"retry" json:"retry"`
	Server   Server               `koanf:"server" json:"server"`
	Database Database             `koanf:"database" json:"database"`
	Queue    jobqueue.QueueConfig `koanf:"queue" json:"queue"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"general.log_level":        "info",
		"general.log_pretty":       false,
		"oracle.provider":          "openai",
		"oracle.model":             "gpt-4o-mini",
		"oracle.request_interval":  time.Second,
		"oracle.burst":             5,
		"review.temperatures":      []float64{0.2, 0.5, 0.8},
		"review.merge_temperature": 0.0,
		"review.max_tokens":        4096,
		"review.redact":            true,
		"server.port":              8880,
	}
}

// Load builds the configuration. An explicit path must exist and parse; an
// empty path scans the default locations and skips files that are absent.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else {
		for _, candidate := range []string{"./qrdata/quorumreview.toml", "./quorumreview.toml", "$HOME/.quorumreview.toml"} {
			candidate = os.ExpandEnv(candidate)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if err := k.Load(file.Provider(candidate), toml.Parser()); err == nil {
				break
			}
		}
	}

	// QUORUMREVIEW_ORACLE_API_KEY -> oracle.api_key. The config tree is two
	// levels deep everywhere, so only the first underscore separates levels;
	// the rest belong to the field name.
	if err := k.Load(env.Provider("QUORUMREVIEW_", ".", func(s string) string {
		parts := strings.SplitN(strings.ToLower(strings.TrimPrefix(s, "QUORUMREVIEW_")), "_", 2)
		return strings.Join(parts, ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg := &Config{
		Strategy: strategy.DefaultThresholds(),
		Retry:    retry.OracleConfig(),
		Queue:    *jobqueue.DefaultQueueConfig(),
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case oracle.ProviderOpenAI, oracle.ProviderGemini, oracle.ProviderClaude, oracle.ProviderCohere:
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle provider %s requires an api_key", c.Oracle.Provider)
		}
	case oracle.ProviderOllama:
		// Local provider, no key.
	default:
		return fmt.Errorf("unsupported oracle provider: %q", c.Oracle.Provider)
	}

	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle model is required")
	}
	if len(c.Review.Temperatures) == 0 {
		return fmt.Errorf("review requires at least one sampling temperature")
	}
	for _, temp := range c.Review.Temperatures {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("sampling temperature %v out of range [0,2]", temp)
		}
	}

	t := c.Strategy
	if t.SmallFiles <= 0 || t.MediumFiles < t.SmallFiles || t.LargeFiles < t.MediumFiles {
		return fmt.Errorf("strategy file thresholds must be positive and ascending")
	}
	if t.SmallLOC <= 0 || t.MediumLOC < t.SmallLOC || t.LargeLOC < t.MediumLOC {
		return fmt.Errorf("strategy LOC thresholds must be positive and ascending")
	}
	if t.DefaultBatchSize <= 0 {
		return fmt.Errorf("strategy default batch size must be positive")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry budget cannot be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	return nil
}

const sampleConfig = `# QuorumReview configuration

[general]
log_level = "info"
log_pretty = true

[oracle]
provider = "openai"         # openai | gemini | claude | cohere | ollama
api_key = "your-api-key"
model = "gpt-4o-mini"
request_interval = "1s"
burst = 5

[review]
temperatures = [0.2, 0.5, 0.8]
merge_temperature = 0.0
max_tokens = 4096
redact = true

[strategy]
small_files = 10
small_loc = 500
medium_files = 30
medium_loc = 2000
large_files = 100
large_loc = 5000
complexity_threshold = 0.7
default_batch_size = 10

[retry]
max_retries = 3
base_delay = "2s"
max_delay = "60s"
multiplier = 2.5
jitter = true

[server]
port = 8880

[database]
url = ""                    # empty falls back to DATABASE_URL / .env

[queue]
max_workers = 5
max_attempts = 3
job_timeout = "10m"
`

// Init writes a commented sample configuration to path, refusing to
// overwrite an existing file.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

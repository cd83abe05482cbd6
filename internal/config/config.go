package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lamim/groqkit/pkg/groq"
)

// Config represents a groqkit CLI profile
type Config struct {
	Client   ClientConfig   `toml:"client" yaml:"client"`
	Defaults DefaultsConfig `toml:"defaults" yaml:"defaults"`
	Output   OutputConfig   `toml:"output" yaml:"output"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
}

// ClientConfig holds the settings passed to groq.NewClient
type ClientConfig struct {
	BaseURL           string `toml:"base_url" yaml:"base_url"`
	TimeoutMs         int    `toml:"timeout_ms" yaml:"timeout_ms"`
	RetryAttempts     *int   `toml:"retry_attempts" yaml:"retry_attempts"` // nil keeps the library default, 0 disables retries
	LoggingEnabled    bool   `toml:"logging_enabled" yaml:"logging_enabled"`
	RequestsPerMinute int    `toml:"requests_per_minute" yaml:"requests_per_minute"` // 0 = no client-side limit
}

// DefaultsConfig holds request defaults applied when a flag is not given
type DefaultsConfig struct {
	Model        string   `toml:"model" yaml:"model"`
	Temperature  *float64 `toml:"temperature" yaml:"temperature"`
	TopP         *float64 `toml:"top_p" yaml:"top_p"`
	MaxTokens    *int     `toml:"max_tokens" yaml:"max_tokens"`
	Stop         []string `toml:"stop" yaml:"stop"`
	SystemPrompt string   `toml:"system_prompt" yaml:"system_prompt"`
	JSONMode     bool     `toml:"json_mode" yaml:"json_mode"`
	StripThink   bool     `toml:"strip_think" yaml:"strip_think"` // Remove <think> blocks from printed output
}

// OutputConfig controls transcript sessions
type OutputConfig struct {
	Transcripts *bool  `toml:"transcripts" yaml:"transcripts"` // nil = enabled
	Dir         string `toml:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"` // e.g. ":9090"; empty disables the endpoint
}

// Secrets holds sensitive credentials loaded from the environment
type Secrets struct {
	APIKey string
	// Source is the environment variable the key was read from.
	Source string
}

const (
	// MinTimeoutMs is the smallest accepted client timeout
	MinTimeoutMs = 100

	// MaxRetryAttempts caps the configured retry budget
	MaxRetryAttempts = 10

	// MaxRequestsPerMinute caps the client-side limiter
	MaxRequestsPerMinute = 100000
)

// TranscriptsEnabled reports whether CLI sessions write transcripts
func (c *Config) TranscriptsEnabled() bool {
	return c.Output.Transcripts == nil || *c.Output.Transcripts
}

// Timeout returns the client timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Client.TimeoutMs) * time.Millisecond
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url is required")
	}
	if c.Client.TimeoutMs < MinTimeoutMs {
		return fmt.Errorf("client.timeout_ms must be at least %d (got %d)", MinTimeoutMs, c.Client.TimeoutMs)
	}
	if r := c.Client.RetryAttempts; r != nil && (*r < 0 || *r > MaxRetryAttempts) {
		return fmt.Errorf("client.retry_attempts must be between 0 and %d (got %d)", MaxRetryAttempts, *r)
	}
	if c.Client.RequestsPerMinute < 0 || c.Client.RequestsPerMinute > MaxRequestsPerMinute {
		return fmt.Errorf("client.requests_per_minute must be between 0 and %d (got %d)", MaxRequestsPerMinute, c.Client.RequestsPerMinute)
	}

	if strings.TrimSpace(c.Defaults.Model) == "" {
		return fmt.Errorf("defaults.model is required")
	}
	if t := c.Defaults.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("defaults.temperature must be between 0 and 2")
	}
	if p := c.Defaults.TopP; p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("defaults.top_p must be between 0 and 1")
	}
	if m := c.Defaults.MaxTokens; m != nil && *m < 1 {
		return fmt.Errorf("defaults.max_tokens must be at least 1")
	}
	if len(c.Defaults.Stop) > groq.MaxStopSequences {
		return fmt.Errorf("defaults.stop must not exceed %d sequences (got %d)", groq.MaxStopSequences, len(c.Defaults.Stop))
	}

	if c.TranscriptsEnabled() && c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required when transcripts are enabled")
	}

	return nil
}

// LoadSecrets loads the API key from GROQ_API_KEY, falling back to the generic API_KEY
func LoadSecrets() *Secrets {
	for _, name := range []string{"GROQ_API_KEY", "API_KEY"} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return &Secrets{APIKey: key, Source: name}
		}
	}
	return &Secrets{}
}

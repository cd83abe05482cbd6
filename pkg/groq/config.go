package groq

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI-compatible Groq endpoint
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultTimeout bounds a single request round trip
	DefaultTimeout = 30 * time.Second
	// DefaultRetryAttempts is the number of retries after the first attempt
	DefaultRetryAttempts = 3
	// DefaultUserAgent is sent when Options.UserAgent is empty
	DefaultUserAgent = "groqkit/0.1"
)

// Options holds construction-time settings for a Client.
//
// Zero values select the documented defaults. RetryAttempts is a pointer so
// that an explicit 0 (no retries) can be told apart from "unset".
type Options struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  *int
	LoggingEnabled bool

	// Logger receives client logs when LoggingEnabled is set; slog.Default() otherwise.
	Logger *slog.Logger
	// HTTPClient is used instead of the client-owned pool. The caller keeps ownership.
	HTTPClient *http.Client
	// RequestsPerMinute enables a per-model client-side limiter when > 0.
	RequestsPerMinute int
	Observer          Observer
	UserAgent         string
}

// Config is the validated, immutable form of Options.
type Config struct {
	apiKey            string
	baseURL           string
	timeout           time.Duration
	retryAttempts     int
	loggingEnabled    bool
	requestsPerMinute int
	userAgent         string
}

// NewConfig applies defaults to opts and validates the result.
// Validation failures are *Error values of kind KindValidation naming the field.
func NewConfig(opts Options) (Config, error) {
	cfg := Config{
		apiKey:            strings.TrimSpace(opts.APIKey),
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		timeout:           opts.Timeout,
		retryAttempts:     DefaultRetryAttempts,
		loggingEnabled:    opts.LoggingEnabled,
		requestsPerMinute: opts.RequestsPerMinute,
		userAgent:         opts.UserAgent,
	}
	if cfg.baseURL == "" {
		cfg.baseURL = DefaultBaseURL
	}
	if cfg.timeout == 0 {
		cfg.timeout = DefaultTimeout
	}
	if opts.RetryAttempts != nil {
		cfg.retryAttempts = *opts.RetryAttempts
	}
	if cfg.userAgent == "" {
		cfg.userAgent = DefaultUserAgent
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.apiKey == "" {
		return newValidationError("api_key", "api_key is required")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return newValidationError("base_url", fmt.Sprintf("base_url must be an absolute http(s) URL (got %q)", c.baseURL))
	}
	if c.timeout <= 0 {
		return newValidationError("timeout", fmt.Sprintf("timeout must be positive (got %s)", c.timeout))
	}
	if c.retryAttempts < 0 {
		return newValidationError("retry_attempts", fmt.Sprintf("retry_attempts must be at least 0 (got %d)", c.retryAttempts))
	}
	if c.requestsPerMinute < 0 {
		return newValidationError("requests_per_minute", fmt.Sprintf("requests_per_minute must be at least 0 (got %d)", c.requestsPerMinute))
	}
	return nil
}

// BaseURL returns the endpoint root without a trailing slash.
func (c Config) BaseURL() string { return c.baseURL }

// Timeout returns the per-request round-trip timeout.
func (c Config) Timeout() time.Duration { return c.timeout }

// RetryAttempts returns the retry bound; total attempts are RetryAttempts()+1.
func (c Config) RetryAttempts() int { return c.retryAttempts }

// LoggingEnabled reports whether the client emits logs.
func (c Config) LoggingEnabled() bool { return c.loggingEnabled }

// RequestsPerMinute returns the client-side rate limit, 0 when disabled.
func (c Config) RequestsPerMinute() int { return c.requestsPerMinute }

// UserAgent returns the User-Agent header value.
func (c Config) UserAgent() string { return c.userAgent }

// HasAPIKey reports whether a credential is configured. The key itself is not exposed.
func (c Config) HasAPIKey() bool { return c.apiKey != "" }

func (c Config) String() string {
	return fmt.Sprintf("groq.Config{base_url=%s timeout=%s retry_attempts=%d logging=%t rpm=%d key_length=%d}",
		c.baseURL, c.timeout, c.retryAttempts, c.loggingEnabled, c.requestsPerMinute, len(c.apiKey))
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

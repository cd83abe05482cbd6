package groq

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(Options{APIKey: "gsk_test"})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", cfg.BaseURL(), DefaultBaseURL)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %s, want 30s", cfg.Timeout())
	}
	if cfg.RetryAttempts() != 3 {
		t.Errorf("RetryAttempts() = %d, want 3", cfg.RetryAttempts())
	}
	if cfg.LoggingEnabled() {
		t.Error("LoggingEnabled() should default to false")
	}
	if cfg.UserAgent() != DefaultUserAgent {
		t.Errorf("UserAgent() = %q, want %q", cfg.UserAgent(), DefaultUserAgent)
	}
}

func TestNewConfig_ExplicitZeroRetries(t *testing.T) {
	cfg, err := NewConfig(Options{APIKey: "k", RetryAttempts: Int(0)})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.RetryAttempts() != 0 {
		t.Errorf("RetryAttempts() = %d, want 0", cfg.RetryAttempts())
	}
}

func TestNewConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"missing key", Options{}, "api_key"},
		{"blank key", Options{APIKey: "   "}, "api_key"},
		{"negative retries", Options{APIKey: "k", RetryAttempts: Int(-1)}, "retry_attempts"},
		{"negative timeout", Options{APIKey: "k", Timeout: -time.Second}, "timeout"},
		{"relative base url", Options{APIKey: "k", BaseURL: "api.groq.com/v1"}, "base_url"},
		{"bad scheme", Options{APIKey: "k", BaseURL: "ftp://api.groq.com"}, "base_url"},
		{"negative rpm", Options{APIKey: "k", RequestsPerMinute: -5}, "requests_per_minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opts)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			var e *Error
			if errors.As(err, &e) && e.Field != tt.field {
				t.Errorf("Field = %q, want %q", e.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected message to name %q, got %q", tt.field, err.Error())
			}
		})
	}
}

func TestConfig_StringHidesKey(t *testing.T) {
	cfg, err := NewConfig(Options{APIKey: "gsk_secret_value"})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if strings.Contains(cfg.String(), "gsk_secret_value") {
		t.Errorf("String() leaked the API key: %s", cfg.String())
	}
	if !cfg.HasAPIKey() {
		t.Error("HasAPIKey() = false")
	}
}

func TestNewClient_InvalidOptions(t *testing.T) {
	client, err := NewClient(Options{})
	if err == nil || client != nil {
		t.Fatalf("NewClient() = %v, %v; want nil client and error", client, err)
	}
}

package config

import (
	"fmt"
	"net/url"
	"unicode"
)

const (
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxSystemPromptSize is the maximum allowed size for the default system prompt
	MaxSystemPromptSize = 50 * 1024 // 50KB
)

// ValidateInputs performs additional validation on user-controllable fields
func (c *Config) ValidateInputs() error {
	if err := validateModelName(c.Defaults.Model); err != nil {
		return fmt.Errorf("invalid defaults.model: %w", err)
	}

	if err := validateBaseURL(c.Client.BaseURL); err != nil {
		return fmt.Errorf("invalid client.base_url: %w", err)
	}

	if len(c.Defaults.SystemPrompt) > MaxSystemPromptSize {
		return fmt.Errorf("defaults.system_prompt exceeds maximum size of %d bytes (got %d)",
			MaxSystemPromptSize, len(c.Defaults.SystemPrompt))
	}

	for i, s := range c.Defaults.Stop {
		if s == "" {
			return fmt.Errorf("defaults.stop[%d] must not be empty", i)
		}
	}

	return nil
}

// validateModelName checks model name length and content
func validateModelName(modelName string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("exceeds maximum length of %d (got %d)", MaxModelNameLength, len(modelName))
	}

	if containsControlChars(modelName) {
		return fmt.Errorf("contains invalid control characters")
	}

	return nil
}

// validateBaseURL checks that the base URL is properly formatted
func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("must have a host")
	}

	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

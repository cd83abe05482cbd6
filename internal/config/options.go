package config

import (
	"log/slog"

	"github.com/lamim/groqkit/pkg/groq"
	"github.com/samber/lo"
)

// ClientOptions maps the profile and secrets onto groq.Options
func (c *Config) ClientOptions(secrets *Secrets, logger *slog.Logger, observer groq.Observer) groq.Options {
	opts := groq.Options{
		BaseURL:           c.Client.BaseURL,
		Timeout:           c.Timeout(),
		RetryAttempts:     c.Client.RetryAttempts,
		LoggingEnabled:    c.Client.LoggingEnabled,
		Logger:            logger,
		RequestsPerMinute: c.Client.RequestsPerMinute,
		Observer:          observer,
	}
	if secrets != nil {
		opts.APIKey = secrets.APIKey
	}
	return opts
}

// RequestOptions returns the sampling defaults of the profile as request options
func (c *Config) RequestOptions() []groq.RequestOption {
	var opts []groq.RequestOption
	if c.Defaults.Temperature != nil {
		opts = append(opts, groq.WithTemperature(*c.Defaults.Temperature))
	}
	if c.Defaults.TopP != nil {
		opts = append(opts, groq.WithTopP(*c.Defaults.TopP))
	}
	if c.Defaults.MaxTokens != nil {
		opts = append(opts, groq.WithMaxTokens(*c.Defaults.MaxTokens))
	}
	if stop := lo.Uniq(lo.Compact(c.Defaults.Stop)); len(stop) > 0 {
		opts = append(opts, groq.WithStop(stop...))
	}
	if c.Defaults.JSONMode {
		opts = append(opts, groq.WithJSONMode())
	}
	return opts
}

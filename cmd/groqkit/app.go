package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lamim/groqkit/internal/config"
	"github.com/lamim/groqkit/internal/metrics"
	"github.com/lamim/groqkit/internal/writer"
	"github.com/lamim/groqkit/pkg/groq"
	"github.com/spf13/cobra"
)

// app bundles everything a request-sending command needs
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *groq.Client
	metrics    *metrics.Collector
	session    *writer.SessionManager
	transcript *writer.TranscriptWriter
	logFile    *os.File
	metricsSrv *http.Server
}

// loadProfile loads the env file and profile, then applies persistent flag overrides.
// It returns the profile path actually read ("" when running on defaults).
func loadProfile(cmd *cobra.Command, opts *rootOptions) (*config.Config, *config.Secrets, string, error) {
	if opts.envFile != "" {
		if err := config.LoadEnvFile(opts.envFile); err != nil {
			if cmd.Flags().Changed("env-file") || !errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to load env file: %v\n", err)
			}
		}
	}

	// The default profile path is optional; an explicit one must exist
	path := opts.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, secrets, err := config.Load(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.noTranscript {
		disabled := false
		cfg.Output.Transcripts = &disabled
	}

	return cfg, secrets, path, nil
}

// newApp builds the session, logger, metrics and client for command.
// resumeSession reopens an existing session directory when non-empty.
func newApp(cmd *cobra.Command, opts *rootOptions, command, resumeSession string) (*app, error) {
	cfg, secrets, profilePath, err := loadProfile(cmd, opts)
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	}

	a := &app{cfg: cfg}

	if cfg.TranscriptsEnabled() {
		bootstrap := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))
		a.session, err = writer.NewSessionManager(bootstrap, cfg.Output.Dir, resumeSession)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	} else if resumeSession != "" {
		return nil, fmt.Errorf("--resume requires transcripts to be enabled")
	}

	a.logger, a.logFile, err = writer.SetupLogger(a.session, cmd.ErrOrStderr(), logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	if a.session != nil && profilePath != "" {
		if err := a.session.BackupConfig(profilePath); err != nil {
			a.logger.Warn("Failed to back up profile", "error", err)
		}
	}

	a.metrics = metrics.NewCollector(a.logger)
	if cfg.Metrics.Addr != "" {
		a.startMetricsServer(cfg.Metrics.Addr)
	}

	if secrets.APIKey == "" {
		a.Close()
		return nil, fmt.Errorf("no API key found: set GROQ_API_KEY (or API_KEY) in the environment or in %s", opts.envFile)
	}

	clientOpts := cfg.ClientOptions(secrets, a.logger, a.metrics)
	clientOpts.UserAgent = "groqkit/" + Version
	if opts.verbose {
		clientOpts.LoggingEnabled = true
	}

	a.client, err = groq.NewClient(clientOpts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if a.session != nil {
		a.transcript, err = writer.NewTranscriptWriter(a.session, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	sessionDir := ""
	if a.session != nil {
		sessionDir = a.session.GetSessionDir()
	}
	a.logger.Debug("groqkit starting",
		"version", Version,
		"command", command,
		"profile", profilePath,
		"api_key_source", secrets.Source,
		"session_dir", sessionDir)

	return a, nil
}

func (a *app) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info(a.metrics.GetMetricsSummary(addr))
}

// record appends ex, with err if the exchange failed, to the session transcript and counts it
func (a *app) record(ex writer.Exchange, err error) {
	ex.SetError(err)
	a.metrics.RecordExchange(ex.Command, err)

	if a.transcript == nil {
		return
	}
	if _, werr := a.transcript.WriteExchange(ex); werr != nil {
		a.logger.Warn("Failed to write transcript", "error", werr)
	}
}

// Close releases the client, transcript, metrics server and log file
func (a *app) Close() {
	if a.transcript != nil {
		if err := a.transcript.Close(); err != nil {
			a.logger.Warn("Failed to close transcript", "error", err)
		}
	}
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.logFile != nil {
		_ = a.logFile.Sync()
		_ = a.logFile.Close()
	}
}

// describeError adds a hint for failures the user can act on
func describeError(err error) error {
	var e *groq.Error
	if !errors.As(err, &e) {
		return err
	}
	switch e.Kind {
	case groq.KindAuthentication:
		return fmt.Errorf("%w (check GROQ_API_KEY)", err)
	case groq.KindRateLimit:
		if e.RetryAfter != nil {
			return fmt.Errorf("%w (server asked to wait %s)", err, e.RetryAfter.Round(time.Second))
		}
		return fmt.Errorf("%w (retry budget exhausted; raise client.retry_attempts or lower requests_per_minute)", err)
	case groq.KindTimeout:
		return fmt.Errorf("%w (raise client.timeout_ms)", err)
	}
	return err
}

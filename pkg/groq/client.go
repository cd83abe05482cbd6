// Package groq is a typed client for the Groq OpenAI-compatible chat completions API.
//
// A Client validates requests before any I/O, sends one POST per attempt, maps
// HTTP outcomes onto a closed set of failure kinds and retries rate limit and
// network failures on a linear schedule:
//
//	client, err := groq.NewClient(groq.Options{APIKey: os.Getenv("GROQ_API_KEY")})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	text, err := client.GenerateText(ctx, "llama-3.3-70b-versatile", "Say hi", groq.WithMaxTokens(64))
//	if errors.Is(err, groq.ErrRateLimit) {
//	    // budget exhausted while rate limited
//	}
package groq

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Client sends chat completion requests. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	// transport is the client-owned connection pool, nil when Options.HTTPClient was supplied.
	transport *http.Transport
	logger    *slog.Logger
	observer  Observer
	limiters  *RateLimiterPool
	retry     *retrier

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewClient validates opts and acquires the connection pool.
func NewClient(opts Options) (*Client, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.DiscardHandler)
	if cfg.loggingEnabled {
		logger = opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
	}
	logger = logger.With("component", "groq")

	var observer Observer = nopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		observer: observer,
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	} else {
		c.transport = http.DefaultTransport.(*http.Transport).Clone()
		c.httpClient = &http.Client{Transport: c.transport}
	}
	if cfg.requestsPerMinute > 0 {
		c.limiters = NewRateLimiterPool(cfg.requestsPerMinute, logger)
	}
	c.retry = &retrier{
		maxRetries: cfg.retryAttempts,
		baseDelay:  DefaultBaseRetryDelay,
		logger:     logger,
		observer:   observer,
	}

	logger.Debug("Client created", "config", cfg.String())
	return c, nil
}

// Config returns the validated configuration.
func (c *Client) Config() Config { return c.cfg }

// CreateChatCompletion validates req and sends it, retrying rate limit and
// network failures. Validation failures never reach the network.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, newNetworkError("cannot send request", ErrClientClosed)
	}

	// The stream flag belongs to StreamChatCompletion.
	wire := *req
	wire.Stream = false

	callID := uuid.NewString()
	start := time.Now()
	resp, err := c.retry.do(ctx, req.Model, func(ctx context.Context, attempt int) (*ChatCompletionResponse, error) {
		if err := c.waitRateLimiter(ctx, req.Model); err != nil {
			return nil, err
		}
		c.logger.Debug("Sending chat completion", "call_id", callID, "attempt", attempt, "model", req.Model)
		return c.doRequest(ctx, &wire)
	})
	if err != nil {
		c.logger.Warn("Chat completion failed",
			"call_id", callID,
			"model", req.Model,
			"kind", KindOf(err),
			"duration", time.Since(start),
			"error", err)
		return nil, err
	}

	c.logger.Debug("Chat completion succeeded",
		"call_id", callID,
		"model", resp.Model,
		"choices", len(resp.Choices),
		"total_tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start))
	return resp, nil
}

// Complete builds a request from model, messages and sampling options and sends it.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, opts ...RequestOption) (*ChatCompletionResponse, error) {
	return c.CreateChatCompletion(ctx, NewRequest(model, messages, opts...))
}

// GenerateText sends prompt as a single user message and returns the first
// choice's content. A response without choices is a parsing failure.
func (c *Client) GenerateText(ctx context.Context, model, prompt string, opts ...RequestOption) (string, error) {
	resp, err := c.Complete(ctx, model, []Message{UserMessage(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return resp.FirstContent()
}

// Close releases the client-owned connection pool. It is idempotent; calls
// made after Close fail with a network error wrapping ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.transport != nil {
			c.transport.CloseIdleConnections()
		}
		c.logger.Debug("Client closed")
	})
	return nil
}

func (c *Client) waitRateLimiter(ctx context.Context, model string) error {
	if c.limiters == nil {
		return nil
	}
	start := time.Now()
	if err := c.limiters.Wait(ctx, model); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return mapTransportError(ctxErr)
		}
		// rate.Limiter refuses waits that would outlive the context deadline.
		return &Error{Kind: KindTimeout, Message: "rate limiter wait would exceed deadline", Err: err}
	}
	c.observer.ObserveRateLimiterWait(model, time.Since(start))
	return nil
}

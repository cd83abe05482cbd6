package groq

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool manages per-model client-side rate limiters
type RateLimiterPool struct {
	limiters          map[string]*rate.Limiter
	requestsPerMinute int
	logger            *slog.Logger
	mu                sync.Mutex
}

// NewRateLimiterPool creates a pool whose limiters admit requestsPerMinute each
func NewRateLimiterPool(requestsPerMinute int, logger *slog.Logger) *RateLimiterPool {
	return &RateLimiterPool{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerMinute: requestsPerMinute,
		logger:            logger,
	}
}

// GetOrCreate returns the limiter for model, creating it on first use
func (p *RateLimiterPool) GetOrCreate(model string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[model]; exists {
		return limiter
	}

	// Convert requests per minute to requests per second, 20% burst
	rps := float64(p.requestsPerMinute) / 60.0
	burst := max(1, p.requestsPerMinute/5)
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	p.limiters[model] = limiter

	p.logger.Debug("Created rate limiter",
		"model", model,
		"rpm", p.requestsPerMinute,
		"rps", rps,
		"burst", burst)

	return limiter
}

// Wait blocks until the limiter for model allows the next request
func (p *RateLimiterPool) Wait(ctx context.Context, model string) error {
	return p.GetOrCreate(model).Wait(ctx)
}

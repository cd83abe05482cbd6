package groq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBaseRetryDelay is the linear backoff step: the n-th retry (0-based
// failed attempt index n) waits (n+1) steps unless the server sent a retry-after hint.
const DefaultBaseRetryDelay = time.Second

// linearBackOff implements backoff.BackOff with a linear schedule and no jitter.
// last is set by the operation before NextBackOff is consulted.
type linearBackOff struct {
	base    time.Duration
	attempt int
	last    error
}

func (b *linearBackOff) NextBackOff() time.Duration {
	delay := b.base * time.Duration(b.attempt+1)
	var e *Error
	if errors.As(b.last, &e) && e.Kind == KindRateLimit && e.RetryAfter != nil {
		delay = *e.RetryAfter
	}
	b.attempt++
	return delay
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
	b.last = nil
}

type attemptFunc func(ctx context.Context, attempt int) (*ChatCompletionResponse, error)

// retrier re-invokes an attempt on rate limit and network failures, up to maxRetries times.
type retrier struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	observer   Observer
	// newTimer overrides the backoff sleep; nil uses a real timer.
	newTimer func() backoff.Timer
}

func (r *retrier) do(ctx context.Context, model string, fn attemptFunc) (*ChatCompletionResponse, error) {
	schedule := &linearBackOff{base: r.baseDelay}
	b := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(r.maxRetries)), ctx)

	var (
		resp    *ChatCompletionResponse
		lastErr error
		attempt int
	)
	operation := func() error {
		res, err := fn(ctx, attempt)
		attempt++
		if err == nil {
			resp = res
			return nil
		}
		lastErr = err
		schedule.last = err
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		kind := KindOf(err)
		r.logger.Warn("Retrying API request",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", delay,
			"model", model,
			"kind", kind)
		r.observer.ObserveRetry(model, kind, delay)
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err == nil {
		return resp, nil
	}

	var e *Error
	if errors.As(err, &e) {
		return nil, e
	}
	// A bare context error means the backoff sleep was interrupted.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if lastErr != nil && errors.Is(lastErr, ctxErr) {
			return nil, lastErr
		}
		return nil, mapTransportError(ctxErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, newNetworkError("retry budget exhausted", err)
}

package groq

import "time"

// Observer receives per-attempt measurements. Implementations must be safe
// for concurrent use; internal/metrics provides a Prometheus-backed one.
type Observer interface {
	// ObserveAttempt is called once per transport round trip. kind is empty on success.
	ObserveAttempt(model string, duration time.Duration, kind ErrorKind)
	// ObserveRetry is called before each backoff sleep.
	ObserveRetry(model string, kind ErrorKind, delay time.Duration)
	// ObserveRateLimiterWait is called after the client-side limiter admits a request.
	ObserveRateLimiterWait(model string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, time.Duration, ErrorKind) {}
func (nopObserver) ObserveRetry(string, ErrorKind, time.Duration)   {}
func (nopObserver) ObserveRateLimiterWait(string, time.Duration)    {}

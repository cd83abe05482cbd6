package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lamim/groqkit/pkg/groq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusSuccess = "success"

// Collector records client metrics into its own registry. It implements groq.Observer.
type Collector struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	apiRequestDuration      *prometheus.HistogramVec
	retries                 *prometheus.CounterVec
	retryBackoff            *prometheus.HistogramVec
	rateLimiterWaitDuration *prometheus.HistogramVec
	exchanges               *prometheus.CounterVec
	streamChunks            *prometheus.CounterVec
}

var _ groq.Observer = (*Collector)(nil)

// NewCollector creates a collector with a fresh registry
func NewCollector(logger *slog.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Collector{
		logger:   logger,
		registry: reg,
		apiRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groqkit_api_request_duration_seconds",
				Help:    "Duration of a single API attempt in seconds by model and outcome",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"model", "status"}, // status: "success" or the failure kind
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groqkit_api_retries_total",
				Help: "Total number of retries scheduled by model and failure kind",
			},
			[]string{"model", "kind"},
		),
		retryBackoff: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groqkit_api_retry_backoff_seconds",
				Help:    "Backoff delay before a retry in seconds",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		rateLimiterWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "groqkit_rate_limiter_wait_duration_seconds",
				Help:    "Client-side rate limiter wait duration in seconds by model",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"model"},
		),
		exchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groqkit_exchanges_total",
				Help: "Total number of CLI exchanges by command and outcome",
			},
			[]string{"command", "status"},
		),
		streamChunks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "groqkit_stream_chunks_total",
				Help: "Total number of streamed chunks received by model",
			},
			[]string{"model"},
		),
	}
}

// ObserveAttempt records the duration and outcome of one API attempt
func (c *Collector) ObserveAttempt(model string, duration time.Duration, kind groq.ErrorKind) {
	c.apiRequestDuration.WithLabelValues(model, statusLabel(kind)).Observe(duration.Seconds())
}

// ObserveRetry records a scheduled retry and its backoff
func (c *Collector) ObserveRetry(model string, kind groq.ErrorKind, delay time.Duration) {
	c.retries.WithLabelValues(model, string(kind)).Inc()
	c.retryBackoff.WithLabelValues(model).Observe(delay.Seconds())
}

// ObserveRateLimiterWait records rate limiter wait time
func (c *Collector) ObserveRateLimiterWait(model string, duration time.Duration) {
	c.rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordExchange counts one CLI exchange; err decides the status label
func (c *Collector) RecordExchange(command string, err error) {
	status := statusSuccess
	if err != nil {
		status = statusLabel(groq.KindOf(err))
		if status == statusSuccess {
			status = "error"
		}
	}
	c.exchanges.WithLabelValues(command, status).Inc()
}

// AddStreamChunks counts streamed chunks for model
func (c *Collector) AddStreamChunks(model string, n int) {
	if n > 0 {
		c.streamChunks.WithLabelValues(model).Add(float64(n))
	}
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GetMetricsSummary returns a human-readable pointer to the metrics endpoint
func (c *Collector) GetMetricsSummary(addr string) string {
	if addr == "" {
		return "Metrics endpoint disabled (set metrics.addr or --metrics-addr)"
	}
	return fmt.Sprintf("Metrics collection enabled. View at http://%s/metrics", addr)
}

func statusLabel(kind groq.ErrorKind) string {
	if kind == "" {
		return statusSuccess
	}
	return string(kind)
}

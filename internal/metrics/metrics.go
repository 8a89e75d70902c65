// Package metrics provides Prometheus instrumentation for fraudscore.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudscore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts scoring decisions by label.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "decisions_total",
			Help:      "Total decisions returned by label.",
		},
		[]string{"decision"},
	)

	// FailuresTotal counts requests that ended in FAILED, by the stage that failed.
	FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "scoring_failures_total",
			Help:      "Total scoring requests that failed, by stage.",
		},
		[]string{"stage"},
	)

	// AuditWriteErrorsTotal counts decisions that could not be appended to the audit log.
	AuditWriteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscore",
		Name:      "audit_write_errors_total",
		Help:      "Total audit log append failures.",
	})

	// EventPublishErrorsTotal counts decision events that could not be published.
	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscore",
		Name:      "event_publish_errors_total",
		Help:      "Total decision events that failed to publish.",
	})

	// FraudProbability observes the distribution of scored probabilities.
	FraudProbability = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudscore",
		Name:      "fraud_probability",
		Help:      "Distribution of fraud probabilities produced by the model.",
		Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 0.99, 0.993, 0.999, 1},
	})

	// ScoringDuration observes end-to-end scoring latency.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudscore",
		Name:      "scoring_duration_seconds",
		Help:      "Time from request receipt to response in seconds.",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// MirroredRecordsTotal counts decision events mirrored into the repository.
	MirroredRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "mirrored_records_total",
			Help:      "Total decision events processed by the mirror worker, by result.",
		},
		[]string{"result"},
	)

	// BlockEscalationsTotal counts BLOCK decisions raised for follow-up.
	BlockEscalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudscore",
		Name:      "block_escalations_total",
		Help:      "Total BLOCK decision events escalated by the worker.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		FailuresTotal,
		AuditWriteErrorsTotal,
		EventPublishErrorsTotal,
		FraudProbability,
		ScoringDuration,
		MirroredRecordsTotal,
		BlockEscalationsTotal,
	)
}

// Middleware records request metrics using the chi route pattern as the path label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		// Route pattern, not the raw path, to keep label cardinality bounded.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(rw.status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Quota metrics
	QuotaDecisionsTotal *prometheus.CounterVec
	QuotaResetsTotal    *prometheus.CounterVec
	QuotaReleasesTotal  *prometheus.CounterVec
	QuotaRetriesTotal   prometheus.Counter

	// Training metrics
	TrainingSubmissionsTotal *prometheus.CounterVec
	TrainingUpdatesTotal     *prometheus.CounterVec

	// Generation metrics
	GenerationsTotal *prometheus.CounterVec

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderBreakerOpen     *prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered on reg.
// A nil reg registers on the default registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "portraitlab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Quota metrics
		QuotaDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "decisions_total",
				Help:      "Total number of quota reservation decisions",
			},
			[]string{"source", "decision"}, // decision: allowed, denied
		),
		QuotaResetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "resets_total",
				Help:      "Total number of period rollovers applied",
			},
			[]string{"source"},
		),
		QuotaReleasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "releases_total",
				Help:      "Total number of released reservations",
			},
			[]string{"source", "result"}, // result: released, skipped
		),
		QuotaRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "conflict_retries_total",
				Help:      "Total number of ledger transactions retried after a conflict",
			},
		),

		// Training metrics
		TrainingSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "training",
				Name:      "submissions_total",
				Help:      "Total number of training submissions",
			},
			[]string{"result"}, // result: accepted, rejected, provider_error, error
		),
		TrainingUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "training",
				Name:      "provider_updates_total",
				Help:      "Total number of provider updates by outcome",
			},
			[]string{"outcome", "state"},
		),

		// Generation metrics
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Total number of generation requests",
			},
			[]string{"model", "result"}, // model: custom, base
		),

		// Provider metrics
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Total number of provider API requests",
			},
			[]string{"provider", "operation", "status"},
		),
		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "request_duration_seconds",
				Help:      "Provider API request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "operation"},
		),
		ProviderBreakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "breaker_open",
				Help:      "Circuit breaker state (1=open, 0=closed or half-open)",
			},
			[]string{"provider", "operation"},
		),

		// Cache metrics
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// --- Convenience methods ---

// RecordQuotaDecision records a reservation outcome.
func (m *Metrics) RecordQuotaDecision(source string, allowed bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.QuotaDecisionsTotal.WithLabelValues(source, decision).Inc()
}

// RecordQuotaReset records a period rollover.
func (m *Metrics) RecordQuotaReset(source string) {
	if m == nil {
		return
	}
	m.QuotaResetsTotal.WithLabelValues(source).Inc()
}

// RecordQuotaRelease records a compensating release.
func (m *Metrics) RecordQuotaRelease(source string, released bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if released {
		result = "released"
	}
	m.QuotaReleasesTotal.WithLabelValues(source, result).Inc()
}

// RecordQuotaRetry records a ledger retry after a conflict.
func (m *Metrics) RecordQuotaRetry() {
	if m == nil {
		return
	}
	m.QuotaRetriesTotal.Inc()
}

// RecordTrainingSubmission records a submission result.
func (m *Metrics) RecordTrainingSubmission(result string) {
	if m == nil {
		return
	}
	m.TrainingSubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordTrainingUpdate records how a provider update was handled.
func (m *Metrics) RecordTrainingUpdate(outcome, state string) {
	if m == nil {
		return
	}
	m.TrainingUpdatesTotal.WithLabelValues(outcome, state).Inc()
}

// RecordGeneration records a generation request.
func (m *Metrics) RecordGeneration(model, result string) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(model, result).Inc()
}

// RecordProviderRequest records a provider API request.
func (m *Metrics) RecordProviderRequest(provider, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// SetBreakerOpen sets the circuit breaker state of a provider operation.
func (m *Metrics) SetBreakerOpen(provider, operation string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.ProviderBreakerOpen.WithLabelValues(provider, operation).Set(value)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the entity runtime. A disabled
// config yields a no-op instance; every Record method is safe to call on it.
type Metrics struct {
	config MetricsConfig

	// Field operation metrics
	operations *prometheus.CounterVec

	// Action dispatch metrics
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// Lifecycle metrics
	transitions        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec

	// Cache metrics
	cacheLookups *prometheus.CounterVec

	// System metrics
	liveEntities prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entity_operations_total",
				Help:      "Total number of entity field operations",
			},
			[]string{"entity_type", "operation"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_dispatches_total",
				Help:      "Total number of action dispatches",
			},
			[]string{"entity_type", "profile", "status"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_dispatch_duration_seconds",
				Help:      "Duration of action dispatches in seconds",
				Buckets:   buckets,
			},
			[]string{"entity_type", "profile"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Total number of lifecycle state transitions",
			},
			[]string{"entity_type", "from", "to"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of field validation failures",
			},
			[]string{"entity_type"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		liveEntities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_entities",
				Help:      "Current number of entities held by the runtime cache",
			},
		),
	}

	registry.MustRegister(
		m.operations,
		m.dispatches,
		m.dispatchDuration,
		m.transitions,
		m.validationFailures,
		m.cacheLookups,
		m.liveEntities,
	)

	return m, nil
}

// RecordOperation counts a field operation (get, set, delete, update).
func (m *Metrics) RecordOperation(entityType, operation string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(entityType, operation).Inc()
}

// RecordDispatch records an action dispatch with its outcome and duration.
func (m *Metrics) RecordDispatch(entityType, profile, status string, duration time.Duration) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(entityType, profile, status).Inc()
	m.dispatchDuration.WithLabelValues(entityType, profile).Observe(duration.Seconds())
}

// RecordTransition counts a lifecycle state transition.
func (m *Metrics) RecordTransition(entityType, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(entityType, from, to).Inc()
}

// RecordValidationFailure counts a field validation failure.
func (m *Metrics) RecordValidationFailure(entityType string) {
	if m == nil || m.validationFailures == nil {
		return
	}
	m.validationFailures.WithLabelValues(entityType).Inc()
}

// RecordCacheLookup counts a lookup on a named cache as a hit or miss.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// SetLiveEntities sets the current entity-cache population.
func (m *Metrics) SetLiveEntities(count float64) {
	if m == nil || m.liveEntities == nil {
		return
	}
	m.liveEntities.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

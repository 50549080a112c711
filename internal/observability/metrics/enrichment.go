package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

// EnrichmentMetrics implements ports.EnrichmentObserver and
// resilience.Observer.
type EnrichmentMetrics struct {
	service string

	cacheLookupsTotal *prometheus.CounterVec
	cacheEntriesTotal *prometheus.CounterVec
	externalCalls     *prometheus.CounterVec
	cacheWritesTotal  *prometheus.CounterVec
	appliedTotal      *prometheus.CounterVec
	passDuration      *prometheus.HistogramVec
	distinctPerPass   *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	breakerOpen       *prometheus.GaugeVec
}

func NewEnrichmentMetrics(service string, registerer prometheus.Registerer) *EnrichmentMetrics {
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "cache_lookups_total",
			Help:      "Total classification cache batch lookups by status.",
		},
		[]string{"service", "status"},
	)
	cacheEntriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "cache_entries_total",
			Help:      "Distinct descriptions looked up in the cache by result.",
		},
		[]string{"service", "result"},
	)
	externalCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "external_calls_total",
			Help:      "Total classifier and tariff detail calls by outcome.",
		},
		[]string{"service", "operation", "status"},
	)
	cacheWritesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "cache_writes_total",
			Help:      "Total classification cache upserts by status.",
		},
		[]string{"service", "status"},
	)
	appliedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "applied_total",
			Help:      "Total enriched targets by kind.",
		},
		[]string{"service", "target"},
	)
	passDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "pass_duration_seconds",
			Help:      "Shipment enrichment pass duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)
	distinctPerPass := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sta",
			Subsystem: "enrichment",
			Name:      "distinct_descriptions",
			Help:      "Distinct normalized descriptions per shipment.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sta",
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sta",
			Subsystem: "upstream",
			Name:      "circuit_open",
			Help:      "1 while the operation's circuit breaker is open.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(
		cacheLookupsTotal,
		cacheEntriesTotal,
		externalCalls,
		cacheWritesTotal,
		appliedTotal,
		passDuration,
		distinctPerPass,
		retriesTotal,
		breakerOpen,
	)

	return &EnrichmentMetrics{
		service:           service,
		cacheLookupsTotal: cacheLookupsTotal,
		cacheEntriesTotal: cacheEntriesTotal,
		externalCalls:     externalCalls,
		cacheWritesTotal:  cacheWritesTotal,
		appliedTotal:      appliedTotal,
		passDuration:      passDuration,
		distinctPerPass:   distinctPerPass,
		retriesTotal:      retriesTotal,
		breakerOpen:       breakerOpen,
	}
}

func (m *EnrichmentMetrics) ObserveCacheLookup(hits, misses int, err error) {
	m.cacheLookupsTotal.WithLabelValues(m.service, statusOf(err)).Inc()
	if hits > 0 {
		m.cacheEntriesTotal.WithLabelValues(m.service, "hit").Add(float64(hits))
	}
	if misses > 0 {
		m.cacheEntriesTotal.WithLabelValues(m.service, "miss").Add(float64(misses))
	}
}

func (m *EnrichmentMetrics) ObserveExternalCall(operation string, err error) {
	if operation == "" {
		operation = "unknown"
	}
	status := statusOf(err)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrNotFound):
		status = "not_found"
	case domain.IsKind(err, domain.ErrTemporary):
		status = "temporary"
	case domain.IsKind(err, domain.ErrUnauthorized):
		status = "unauthorized"
	}
	m.externalCalls.WithLabelValues(m.service, operation, status).Inc()
}

func (m *EnrichmentMetrics) ObserveCacheWrite(err error) {
	m.cacheWritesTotal.WithLabelValues(m.service, statusOf(err)).Inc()
}

func (m *EnrichmentMetrics) ObservePass(report domain.EnrichmentReport, elapsed time.Duration) {
	m.passDuration.WithLabelValues(m.service).Observe(elapsed.Seconds())
	m.distinctPerPass.WithLabelValues(m.service).Observe(float64(report.DistinctDescriptions))
	if report.ItemsApplied > 0 {
		m.appliedTotal.WithLabelValues(m.service, "item").Add(float64(report.ItemsApplied))
	}
	if report.ProductsApplied > 0 {
		m.appliedTotal.WithLabelValues(m.service, "product").Add(float64(report.ProductsApplied))
	}
}

func (m *EnrichmentMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *EnrichmentMetrics) ObserveBreakerState(operation string, open bool) {
	value := 0.0
	if open {
		value = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(value)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

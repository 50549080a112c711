package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

func TestEnrichmentMetricsCountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewEnrichmentMetrics("api", registry)

	m.ObserveCacheLookup(3, 2, nil)
	m.ObserveCacheLookup(0, 4, errors.New("db down"))
	m.ObserveExternalCall("classify", nil)
	m.ObserveExternalCall("classify", domain.WrapError(domain.ErrTemporary, "gaia classify", errors.New("503")))
	m.ObserveExternalCall("tariff_detail", domain.WrapError(domain.ErrNotFound, "gaia tariff", errors.New("404")))
	m.ObserveCacheWrite(nil)
	m.ObservePass(domain.EnrichmentReport{DistinctDescriptions: 5, ItemsApplied: 7, ProductsApplied: 2}, 150*time.Millisecond)

	if got := testutil.ToFloat64(m.cacheEntriesTotal.WithLabelValues("api", "hit")); got != 3 {
		t.Fatalf("expected 3 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheEntriesTotal.WithLabelValues("api", "miss")); got != 6 {
		t.Fatalf("expected 6 cache misses, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheLookupsTotal.WithLabelValues("api", "error")); got != 1 {
		t.Fatalf("expected 1 failed lookup, got %v", got)
	}
	if got := testutil.ToFloat64(m.externalCalls.WithLabelValues("api", "classify", "temporary")); got != 1 {
		t.Fatalf("expected 1 temporary classify call, got %v", got)
	}
	if got := testutil.ToFloat64(m.externalCalls.WithLabelValues("api", "tariff_detail", "not_found")); got != 1 {
		t.Fatalf("expected 1 not found tariff call, got %v", got)
	}
	if got := testutil.ToFloat64(m.appliedTotal.WithLabelValues("api", "item")); got != 7 {
		t.Fatalf("expected 7 items applied, got %v", got)
	}
	if got := testutil.CollectAndCount(m.passDuration); got != 1 {
		t.Fatalf("expected one pass duration series, got %d", got)
	}
}

func TestEnrichmentMetricsTracksUpstreamResilience(t *testing.T) {
	m := NewEnrichmentMetrics("worker", prometheus.NewRegistry())

	m.ObserveRetry("gaia.classify")
	m.ObserveRetry("gaia.classify")
	m.ObserveBreakerState("gaia.classify", true)

	if got := testutil.ToFloat64(m.retriesTotal.WithLabelValues("worker", "gaia.classify")); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}
	if got := testutil.ToFloat64(m.breakerOpen.WithLabelValues("worker", "gaia.classify")); got != 1 {
		t.Fatalf("expected open breaker gauge, got %v", got)
	}
	m.ObserveBreakerState("gaia.classify", false)
	if got := testutil.ToFloat64(m.breakerOpen.WithLabelValues("worker", "gaia.classify")); got != 0 {
		t.Fatalf("expected closed breaker gauge, got %v", got)
	}
}

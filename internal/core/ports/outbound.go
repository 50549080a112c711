package ports

import (
	"context"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

// TariffClassifier resolves a product description to a best-guess code.
// An error means no result; a nil error with an empty code means the
// classifier found nothing.
type TariffClassifier interface {
	Classify(ctx context.Context, req domain.ClassifyRequest) (domain.ClassificationOutcome, error)
}

// TariffDetailProvider returns the duty breakdown for a classification code.
type TariffDetailProvider interface {
	TariffDetail(ctx context.Context, req domain.TariffDetailRequest) (domain.TariffDetailLookup, error)
}

// ClassificationCache persists classification results by content hash.
type ClassificationCache interface {
	GetBatch(ctx context.Context, hashes []string, destination, origin string) (map[string]domain.ClassificationCacheEntry, error)
	Upsert(ctx context.Context, entry domain.ClassificationCacheEntry) error
}

// DescriptionRefiner optionally rewrites raw descriptions into clean trade
// names. Missing keys in the result mean no refinement.
type DescriptionRefiner interface {
	RefineBatch(ctx context.Context, descriptions []string) (map[string]string, error)
}

// EnrichmentQueue carries enrichment requests between processes.
type EnrichmentQueue interface {
	SubscribeEnrichmentRequests(ctx context.Context, handler func(context.Context, []byte) ([]byte, error)) error
}

// EnrichmentObserver receives pipeline counters.
type EnrichmentObserver interface {
	ObserveCacheLookup(hits, misses int, err error)
	ObserveExternalCall(operation string, err error)
	ObserveCacheWrite(err error)
	ObservePass(report domain.EnrichmentReport, elapsed time.Duration)
}

package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/ports"
)

const (
	operationClassify     = "classify"
	operationTariffDetail = "tariff_detail"
)

type EnrichShipmentUseCase struct {
	cache      ports.ClassificationCache
	classifier ports.TariffClassifier
	tariffs    ports.TariffDetailProvider
	refiner    ports.DescriptionRefiner
	observer   ports.EnrichmentObserver
	limits     domain.EnrichmentLimits
	logger     *slog.Logger
}

// NewEnrichShipmentUseCase wires the enrichment pipeline. refiner and
// observer are optional.
func NewEnrichShipmentUseCase(
	cache ports.ClassificationCache,
	classifier ports.TariffClassifier,
	tariffs ports.TariffDetailProvider,
	refiner ports.DescriptionRefiner,
	observer ports.EnrichmentObserver,
	limits domain.EnrichmentLimits,
	logger *slog.Logger,
) *EnrichShipmentUseCase {
	if limits.MaxConcurrency <= 0 {
		limits.MaxConcurrency = 8
	}
	if limits.CacheWriteTimeout <= 0 {
		limits.CacheWriteTimeout = 5 * time.Second
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichShipmentUseCase{
		cache:      cache,
		classifier: classifier,
		tariffs:    tariffs,
		refiner:    refiner,
		observer:   observer,
		limits:     limits,
		logger:     logger,
	}
}

// Enrich classifies every distinct item description of the shipment and
// writes the results onto its box items and product details in place.
// External failures degrade single descriptions; the returned error is
// reserved for unusable input.
func (uc *EnrichShipmentUseCase) Enrich(ctx context.Context, shipment *domain.Shipment, route domain.TradeRoute) (domain.EnrichmentReport, error) {
	if shipment == nil {
		return domain.EnrichmentReport{}, domain.WrapError(domain.ErrInvalidInput, "enrich shipment", fmt.Errorf("shipment is required"))
	}
	if !domain.IsCountryCode(route.Destination) || !domain.IsCountryCode(route.Origin) {
		return domain.EnrichmentReport{}, domain.WrapError(domain.ErrInvalidInput, "enrich shipment",
			fmt.Errorf("invalid trade route %q -> %q", route.Origin, route.Destination))
	}

	started := time.Now()
	groups := collectDescriptionGroups(shipment, route)
	report := domain.EnrichmentReport{DistinctDescriptions: len(groups)}
	for _, g := range groups {
		report.TotalItems += len(g.Members)
	}
	if len(groups) == 0 {
		uc.observer.ObservePass(report, time.Since(started))
		return report, nil
	}

	results, misses := uc.lookupCache(ctx, groups, route)
	report.CacheHits = len(results)
	report.CacheMisses = len(misses)

	if len(misses) > 0 {
		uc.refine(ctx, misses)
		resolved := uc.resolveMisses(ctx, misses, route)
		for i, res := range resolved {
			if res == nil {
				report.Failed++
				continue
			}
			results[misses[i].ContentHash] = *res
			report.Resolved++
		}
	}

	report.ItemsApplied = applyToItems(shipment, groups, results)
	report.ProductsApplied = applyToProducts(shipment, route, results)

	uc.observer.ObservePass(report, time.Since(started))
	uc.logger.Info("enrichment_complete",
		"total_items", report.TotalItems,
		"distinct", report.DistinctDescriptions,
		"cache_hits", report.CacheHits,
		"cache_misses", report.CacheMisses,
		"resolved", report.Resolved,
		"failed", report.Failed,
		"items_applied", report.ItemsApplied,
		"products_applied", report.ProductsApplied,
	)
	return report, nil
}

// collectDescriptionGroups dedups box items by content hash, preserving
// first-seen order.
func collectDescriptionGroups(shipment *domain.Shipment, route domain.TradeRoute) []*domain.DescriptionGroup {
	var groups []*domain.DescriptionGroup
	byHash := make(map[string]*domain.DescriptionGroup)
	for b, box := range shipment.Boxes {
		for i, item := range box.Items {
			if strings.TrimSpace(item.Description) == "" {
				continue
			}
			normalized := NormalizeDescription(item.Description)
			if normalized == "" {
				continue
			}
			hash := ContentHash(normalized, route.Destination, route.Origin)
			group, ok := byHash[hash]
			if !ok {
				group = &domain.DescriptionGroup{Normalized: normalized, ContentHash: hash}
				byHash[hash] = group
				groups = append(groups, group)
			}
			group.Members = append(group.Members, domain.ItemRef{BoxIndex: b, ItemIndex: i, Original: item.Description})
		}
	}
	return groups
}

func (uc *EnrichShipmentUseCase) lookupCache(ctx context.Context, groups []*domain.DescriptionGroup, route domain.TradeRoute) (map[string]domain.ClassificationResult, []*domain.DescriptionGroup) {
	hashes := make([]string, 0, len(groups))
	for _, g := range groups {
		hashes = append(hashes, g.ContentHash)
	}

	rows, err := uc.cache.GetBatch(ctx, hashes, route.Destination, route.Origin)
	if err != nil {
		uc.logger.Warn("enrichment_cache_lookup_failed", "distinct", len(hashes), "error", err)
		rows = nil
	}

	results := make(map[string]domain.ClassificationResult, len(groups))
	var misses []*domain.DescriptionGroup
	for _, g := range groups {
		entry, ok := rows[g.ContentHash]
		if !ok {
			misses = append(misses, g)
			continue
		}
		results[g.ContentHash] = resultFromCache(entry)
	}

	uc.observer.ObserveCacheLookup(len(results), len(misses), err)
	uc.logger.Debug("enrichment_cache_lookup", "hits", len(results), "misses", len(misses))
	return results, misses
}

// refine asks the optional refiner for clean trade names of the misses. The
// regex-normalized description stays the cache key either way.
func (uc *EnrichShipmentUseCase) refine(ctx context.Context, misses []*domain.DescriptionGroup) {
	if uc.refiner == nil {
		return
	}
	originals := make([]string, 0, len(misses))
	for _, g := range misses {
		originals = append(originals, firstOriginal(g))
	}
	refined, err := uc.refiner.RefineBatch(ctx, originals)
	if err != nil {
		uc.logger.Warn("description_refine_failed", "count", len(originals), "error", err)
		return
	}
	for _, g := range misses {
		if text := strings.TrimSpace(refined[firstOriginal(g)]); text != "" {
			g.ClassifierText = text
		}
	}
}

// resolveMisses classifies misses concurrently. Slot i of the result holds
// the outcome of misses[i], nil when unresolved.
func (uc *EnrichShipmentUseCase) resolveMisses(ctx context.Context, misses []*domain.DescriptionGroup, route domain.TradeRoute) []*domain.ClassificationResult {
	resolved := make([]*domain.ClassificationResult, len(misses))

	var g errgroup.Group
	g.SetLimit(uc.limits.MaxConcurrency)
	for i, group := range misses {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, ok := uc.resolve(ctx, group, route)
			if !ok {
				return nil
			}
			uc.persist(ctx, group, route, res)
			resolved[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	return resolved
}

func (uc *EnrichShipmentUseCase) resolve(ctx context.Context, group *domain.DescriptionGroup, route domain.TradeRoute) (domain.ClassificationResult, bool) {
	text := group.ClassifierText
	if text == "" {
		text = group.Normalized
	}

	outcome, err := uc.classifier.Classify(ctx, domain.ClassifyRequest{
		Description:        text,
		DestinationCountry: route.Destination,
	})
	uc.observer.ObserveExternalCall(operationClassify, err)
	if err != nil {
		uc.logger.Warn("classification_failed", "content_hash", shortHash(group.ContentHash), "description", text, "error", err)
		return domain.ClassificationResult{}, false
	}

	var lookup domain.TariffDetailLookup
	if outcome.BestGuessCode != "" {
		lookup, err = uc.tariffs.TariffDetail(ctx, domain.TariffDetailRequest{
			DestinationCountry: route.Destination,
			ClassificationCode: outcome.BestGuessCode,
			OriginCountry:      route.Origin,
		})
		uc.observer.ObserveExternalCall(operationTariffDetail, err)
		if err != nil {
			uc.logger.Warn("tariff_detail_failed", "content_hash", shortHash(group.ContentHash), "code", outcome.BestGuessCode, "error", err)
			lookup = domain.TariffDetailLookup{}
		}
	}

	res := domain.ClassificationResult{
		ImportCode:             outcome.BestGuessCode,
		ExportCodeFallback:     outcome.BestGuessCode,
		Confidence:             outcome.Confidence,
		ClassifierDescription:  text,
		ClassificationResponse: outcome.Raw,
	}
	var breakdown DutyBreakdown
	if lookup.Found {
		breakdown = CalculateDuty(lookup.Detail)
		res.TariffResponse = lookup.Raw
	}
	applyDuty(&res, breakdown, outcome.InlineBaseDuty)

	uc.logger.Debug("classification_resolved",
		"content_hash", shortHash(group.ContentHash),
		"code", res.ImportCode,
		"confidence", res.Confidence,
		"tariff_detail_found", lookup.Found,
	)
	return res, true
}

// persist writes a fresh result to the cache on a context detached from the
// caller, so a cancelled pass still keeps what it paid for.
func (uc *EnrichShipmentUseCase) persist(ctx context.Context, group *domain.DescriptionGroup, route domain.TradeRoute, res domain.ClassificationResult) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.limits.CacheWriteTimeout)
	defer cancel()

	err := uc.cache.Upsert(writeCtx, domain.ClassificationCacheEntry{
		ContentHash:            group.ContentHash,
		NormalizedDescription:  group.Normalized,
		DestinationCountry:     route.Destination,
		OriginCountry:          route.Origin,
		ExportCode:             res.ExportCodeFallback,
		ImportCode:             res.ImportCode,
		DutyRate:               res.DutyRate,
		ConfidenceLabel:        res.Confidence,
		ClassifierDescription:  res.ClassifierDescription,
		ClassificationResponse: res.ClassificationResponse,
		TariffResponse:         res.TariffResponse,
		UpdatedAt:              time.Now().UTC(),
	})
	uc.observer.ObserveCacheWrite(err)
	if err != nil {
		uc.logger.Warn("enrichment_cache_write_failed", "content_hash", shortHash(group.ContentHash), "error", err)
	}
}

// resultFromCache rebuilds a result from a cache row. Duty is recomputed
// from the raw tariff payload rather than read from the stored rate.
func resultFromCache(entry domain.ClassificationCacheEntry) domain.ClassificationResult {
	res := domain.ClassificationResult{
		ImportCode:             entry.ImportCode,
		ExportCodeFallback:     entry.ExportCode,
		Confidence:             entry.ConfidenceLabel,
		ClassifierDescription:  entry.ClassifierDescription,
		ClassificationResponse: entry.ClassificationResponse,
		TariffResponse:         entry.TariffResponse,
	}

	var breakdown DutyBreakdown
	if len(entry.TariffResponse) > 0 {
		var detail domain.TariffDetail
		if err := json.Unmarshal(entry.TariffResponse, &detail); err == nil {
			breakdown = CalculateDuty(detail)
		}
	}
	var inline string
	if len(entry.ClassificationResponse) > 0 {
		var payload domain.ClassificationPayload
		if err := json.Unmarshal(entry.ClassificationResponse, &payload); err == nil {
			inline = payload.InlineBaseDuty()
		}
	}
	applyDuty(&res, breakdown, inline)
	return res
}

// applyDuty sets the duty fields from the tariff breakdown, or from the
// inline base duty when no breakdown rate exists.
func applyDuty(res *domain.ClassificationResult, breakdown DutyBreakdown, inlineBaseDuty string) {
	res.Scenarios = breakdown.Scenarios
	res.RemedyFlags = breakdown.RemedyFlags
	if breakdown.HasRate {
		base, cumulative := breakdown.BaseRate, breakdown.CumulativeRate
		res.BaseDutyRate = &base
		res.DutyRate = &cumulative
		return
	}
	if rate, ok := ParseDutyPercent(inlineBaseDuty); ok {
		base, cumulative := rate, rate
		res.BaseDutyRate = &base
		res.DutyRate = &cumulative
	}
}

func firstOriginal(g *domain.DescriptionGroup) string {
	if len(g.Members) == 0 {
		return g.Normalized
	}
	return g.Members[0].Original
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

type noopObserver struct{}

func (noopObserver) ObserveCacheLookup(int, int, error) {}
func (noopObserver) ObserveExternalCall(string, error) {}
func (noopObserver) ObserveCacheWrite(error) {}
func (noopObserver) ObservePass(domain.EnrichmentReport, time.Duration) {}

package usecase

import (
	"strings"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

func applyToItems(shipment *domain.Shipment, groups []*domain.DescriptionGroup, results map[string]domain.ClassificationResult) int {
	applied := 0
	for _, group := range groups {
		res, ok := results[group.ContentHash]
		if !ok {
			continue
		}
		for _, ref := range group.Members {
			item := &shipment.Boxes[ref.BoxIndex].Items[ref.ItemIndex]
			if applyGate(&item.TariffEnrichment, res, group.Normalized) {
				if item.ExportCode == "" {
					item.ExportCode = res.ExportCodeFallback
				}
			}
			applied++
		}
	}
	return applied
}

// applyToProducts mirrors the box-item results onto the product summary by
// hash. It never triggers a lookup of its own.
func applyToProducts(shipment *domain.Shipment, route domain.TradeRoute, results map[string]domain.ClassificationResult) int {
	applied := 0
	for i := range shipment.ProductDetails {
		product := &shipment.ProductDetails[i]
		if strings.TrimSpace(product.Description) == "" {
			continue
		}
		normalized := NormalizeDescription(product.Description)
		if normalized == "" {
			continue
		}
		res, ok := results[ContentHash(normalized, route.Destination, route.Origin)]
		if !ok {
			continue
		}
		if applyGate(&product.TariffEnrichment, res, normalized) {
			if product.HSNCode == "" {
				product.HSNCode = res.ExportCodeFallback
			}
		}
		applied++
	}
	return applied
}

// applyGate stamps the classification marker and confidence label
// unconditionally, then copies codes and duty only for trusted labels. It
// reports whether the trusted fields were written.
func applyGate(target *domain.TariffEnrichment, res domain.ClassificationResult, normalized string) bool {
	target.Classified = true
	target.ClassifiedDescription = res.ClassifierDescription
	if target.ClassifiedDescription == "" {
		target.ClassifiedDescription = normalized
	}
	if res.Confidence != "" {
		target.ConfidenceLabel = res.Confidence
	}

	if !res.Confidence.Trusted() {
		return false
	}

	target.ImportCode = res.ImportCode
	if res.DutyRate != nil {
		v := *res.DutyRate
		target.DutyRate = &v
	}
	if res.BaseDutyRate != nil {
		v := *res.BaseDutyRate
		target.BaseDutyRate = &v
	}
	if len(res.Scenarios) > 0 {
		target.TariffScenarios = append([]domain.TariffScenario(nil), res.Scenarios...)
	}
	if res.RemedyFlags != nil {
		flags := *res.RemedyFlags
		target.RemedyFlags = &flags
	}
	return true
}

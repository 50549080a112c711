package ports

import (
	"context"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

// ShipmentGrouper is the inbound contract for clustering documents into shipments.
type ShipmentGrouper interface {
	Group(ctx context.Context, docs []domain.ExtractedDocument) ([]domain.ShipmentGroup, error)
}

// ShipmentEnricher is the inbound contract for tariff enrichment of a shipment's line items.
type ShipmentEnricher interface {
	Enrich(ctx context.Context, shipment *domain.Shipment, route domain.TradeRoute) (domain.EnrichmentReport, error)
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/ports"
)

// RunEnrichmentRequest resolves the trade route of an enrichment envelope
// and runs one pass over its shipment in place.
func RunEnrichmentRequest(ctx context.Context, enricher ports.ShipmentEnricher, req domain.EnrichmentRequest) (domain.EnrichmentResponse, error) {
	if req.Shipment == nil {
		return domain.EnrichmentResponse{}, domain.WrapError(domain.ErrInvalidInput, "enrich request", errors.New("shipment is required"))
	}
	route := req.Shipment.ResolveRoute(req.DestinationCountry, req.OriginCountry)
	report, err := enricher.Enrich(ctx, req.Shipment, route)
	if err != nil {
		return domain.EnrichmentResponse{}, err
	}
	return domain.EnrichmentResponse{
		Shipment: req.Shipment,
		Route:    route,
		Report:   report,
	}, nil
}

// EnrichmentMessageHandler adapts the enricher to raw JSON messages as
// carried by the queue.
func EnrichmentMessageHandler(enricher ports.ShipmentEnricher) func(context.Context, []byte) ([]byte, error) {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req domain.EnrichmentRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode enrichment request", err)
		}
		resp, err := RunEnrichmentRequest(ctx, enricher, req)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encode enrichment response: %w", err)
		}
		return out, nil
	}
}

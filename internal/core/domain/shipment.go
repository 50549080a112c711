package domain

import (
	"strings"
	"time"
)

// Shipment is the draft shipment payload whose line items get enriched.
type Shipment struct {
	ShipperAddress  Address         `json:"shipper_address"`
	ReceiverAddress Address         `json:"receiver_address"`
	Boxes           []Box           `json:"shipment_boxes"`
	ProductDetails  []ProductDetail `json:"product_details,omitempty"`
}

type Address struct {
	Name    string `json:"name,omitempty"`
	Country string `json:"country,omitempty"`
}

type Box struct {
	BoxNumber string    `json:"box_number,omitempty"`
	Items     []BoxItem `json:"shipment_box_items"`
}

type BoxItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity,omitempty"`
	ExportCode  string  `json:"ehsn,omitempty"`
	TariffEnrichment
}

// ProductDetail is the shipment-level customs summary mirroring box items.
type ProductDetail struct {
	Description string `json:"product_description"`
	HSNCode     string `json:"hsn_code,omitempty"`
	TariffEnrichment
}

// TariffEnrichment is the set of fields written by a classification pass.
type TariffEnrichment struct {
	ImportCode            string           `json:"ihsn,omitempty"`
	DutyRate              *float64         `json:"duty_rate,omitempty"`
	BaseDutyRate          *float64         `json:"base_duty_rate,omitempty"`
	TariffScenarios       []TariffScenario `json:"tariff_scenarios,omitempty"`
	RemedyFlags           *RemedyFlags     `json:"remedy_flags,omitempty"`
	ConfidenceLabel       ConfidenceLabel  `json:"hsn_confidence,omitempty"`
	Classified            bool             `json:"classified,omitempty"`
	ClassifiedDescription string           `json:"classified_description,omitempty"`
}

// TradeRoute is the ISO-3166 alpha-2 destination/origin pair of a shipment.
type TradeRoute struct {
	Destination string `json:"destination_country"`
	Origin      string `json:"origin_country"`
}

// ItemRef points at one box item inside a shipment.
type ItemRef struct {
	BoxIndex  int
	ItemIndex int
	Original  string
}

// DescriptionGroup collects items sharing one normalized description.
type DescriptionGroup struct {
	Normalized  string
	ContentHash string
	Members     []ItemRef
	// ClassifierText overrides Normalized as the text sent to the classifier.
	ClassifierText string
}

type EnrichmentReport struct {
	TotalItems           int `json:"total_items"`
	DistinctDescriptions int `json:"distinct_descriptions"`
	CacheHits            int `json:"cache_hits"`
	CacheMisses          int `json:"cache_misses"`
	Resolved             int `json:"resolved"`
	Failed               int `json:"failed"`
	ItemsApplied         int `json:"items_applied"`
	ProductsApplied      int `json:"products_applied"`
}

// DefaultRoute derives the trade route from the shipment addresses. Missing
// or unrecognized countries fall back to US for the destination and IN for
// the origin.
func (s *Shipment) DefaultRoute() TradeRoute {
	return TradeRoute{
		Destination: NormalizeCountryCode(s.ReceiverAddress.Country, "US"),
		Origin:      NormalizeCountryCode(s.ShipperAddress.Country, "IN"),
	}
}

// ResolveRoute prefers explicitly requested countries and falls back to
// DefaultRoute for the rest. Explicit values that are not recognizable
// country names are kept as given so the enricher can reject them.
func (s *Shipment) ResolveRoute(destination, origin string) TradeRoute {
	route := s.DefaultRoute()
	if v := strings.TrimSpace(destination); v != "" {
		route.Destination = NormalizeCountryCode(v, strings.ToUpper(v))
	}
	if v := strings.TrimSpace(origin); v != "" {
		route.Origin = NormalizeCountryCode(v, strings.ToUpper(v))
	}
	return route
}

// EnrichmentRequest is the wire envelope accepted by the API, the worker and
// the CLI.
type EnrichmentRequest struct {
	Shipment           *Shipment `json:"shipment"`
	DestinationCountry string    `json:"destination_country,omitempty"`
	OriginCountry      string    `json:"origin_country,omitempty"`
}

type EnrichmentResponse struct {
	Shipment *Shipment        `json:"shipment"`
	Route    TradeRoute       `json:"route"`
	Report   EnrichmentReport `json:"report"`
}

type EnrichmentLimits struct {
	MaxConcurrency    int
	CacheWriteTimeout time.Duration
}

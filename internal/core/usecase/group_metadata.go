package usecase

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

// Letter-prefixed digit runs (WFS-042025-26, USA-14) or digit-prefixed
// letter runs (2024INV).
var filenameIdentifierRe = regexp.MustCompile(`[A-Za-z]+[\-/]?\d[\w\-/]*|\d[\w\-/]*[A-Za-z]+[\w\-/]*`)

const minFilenameTokenLen = 3

var documentDateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"2/1/2006",
	"1/2/2006",
	"2.1.2006",
	"2006/1/2",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// FilenameTokens extracts identifier-like tokens from a filename stem.
func FilenameTokens(filename string) map[string]struct{} {
	stem := filepath.Base(filename)
	if ext := filepath.Ext(stem); ext != "" {
		stem = strings.TrimSuffix(stem, ext)
	}
	out := make(map[string]struct{})
	for _, token := range filenameIdentifierRe.FindAllString(stem, -1) {
		if len(token) < minFilenameTokenLen {
			continue
		}
		out[strings.ToUpper(token)] = struct{}{}
	}
	return out
}

// ParseDocumentDate tries the known layouts in order. Unparsable input
// yields nil.
func ParseDocumentDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range documentDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// ExtractMetadata reads the grouping signals of one document.
func ExtractMetadata(doc domain.ExtractedDocument) domain.DocumentMetadata {
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}
	meta := domain.DocumentMetadata{
		FileID:         doc.FileID,
		Filename:       doc.Filename,
		Kind:           domain.ParseDocumentKind(string(doc.Kind)),
		FilenameTokens: FilenameTokens(doc.Filename),
	}

	var date string
	switch meta.Kind {
	case domain.KindInvoice:
		inv := data
		if nested, ok := data["invoice"].(map[string]any); ok {
			inv = nested
		}
		meta.InvoiceNumber = domain.LookupField(inv, "invoice_number").String()
		meta.PONumber = domain.LookupField(inv, "po_number", "purchase_order_number").String()
		meta.SellerName = NormalizePartyName(domain.LookupField(inv, "exporter.name", "seller.name", "shipper.name").String())
		meta.BuyerName = NormalizePartyName(domain.LookupField(inv, "consignee.name", "buyer.name", "importer.name").String())
		date = domain.LookupField(inv, "invoice_date", "date").String()
		meta.DestinationCountry = domain.LookupField(inv, "ship_to.country", "consignee.country").String()
		meta.ContainerNumber = domain.LookupField(inv, "container_number", "bl_number").String()
	case domain.KindPackingList:
		meta.InvoiceNumber = domain.LookupField(data, "invoice_number", "invoice_ref").String()
		meta.PONumber = domain.LookupField(data, "po_number").String()
		meta.SellerName = NormalizePartyName(domain.LookupField(data, "exporter_name", "exporter.name", "shipper.name").String())
		meta.BuyerName = NormalizePartyName(domain.LookupField(data, "consignee_name", "consignee.name").String())
		date = domain.LookupField(data, "date", "packing_date").String()
		meta.DestinationCountry = firstDestinationCountry(data)
		meta.ContainerNumber = domain.LookupField(data, "container_number", "bl_number").String()
	default:
		meta.InvoiceNumber = domain.LookupField(data, "invoice_number", "reference_number").String()
		meta.PONumber = domain.LookupField(data, "po_number").String()
		meta.SellerName = NormalizePartyName(domain.LookupField(data, "exporter.name", "issuer.name").String())
		meta.BuyerName = NormalizePartyName(domain.LookupField(data, "consignee.name", "applicant.name").String())
		date = domain.LookupField(data, "date", "issue_date").String()
		meta.DestinationCountry = domain.LookupField(data, "country", "destination_country").String()
		meta.ContainerNumber = domain.LookupField(data, "container_number", "bl_number").String()
	}
	meta.Date = ParseDocumentDate(date)
	return meta
}

func firstDestinationCountry(data map[string]any) string {
	destinations, ok := data["destinations"].([]any)
	if !ok || len(destinations) == 0 {
		return ""
	}
	first, ok := destinations[0].(map[string]any)
	if !ok {
		return ""
	}
	return domain.LookupField(first, "country", "address.country").String()
}

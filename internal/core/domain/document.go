package domain

import (
	"strings"
	"time"
)

type DocumentKind string

const (
	KindInvoice     DocumentKind = "invoice"
	KindPackingList DocumentKind = "packing_list"
	KindOther       DocumentKind = "other"
)

// ParseDocumentKind folds every classifier label it does not group on
// (certificate, bill_of_lading, ...) into KindOther.
func ParseDocumentKind(raw string) DocumentKind {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindInvoice:
		return KindInvoice
	case KindPackingList:
		return KindPackingList
	default:
		return KindOther
	}
}

// ExtractedDocument is a classified source file with its already-extracted
// structured fields.
type ExtractedDocument struct {
	FileID   string         `json:"id"`
	Filename string         `json:"filename"`
	Kind     DocumentKind   `json:"file_type"`
	Data     map[string]any `json:"extracted_data"`
}

// DocumentMetadata holds the grouping signals of one document.
type DocumentMetadata struct {
	FileID             string
	Filename           string
	Kind               DocumentKind
	InvoiceNumber      string
	PONumber           string
	SellerName         string
	BuyerName          string
	Date               *time.Time
	DestinationCountry string
	ContainerNumber    string
	FilenameTokens     map[string]struct{}
}

type ShipmentGroup struct {
	FileIDs []string `json:"file_ids"`
	Reason  string   `json:"reason"`
}

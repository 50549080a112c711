package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

func TestGroupExactInvoiceMatch(t *testing.T) {
	uc := NewGroupShipmentsUseCase(nil)
	docs := []domain.ExtractedDocument{
		{FileID: "f1", Filename: "scan_a.pdf", Kind: domain.KindInvoice, Data: map[string]any{
			"invoice_number": "WFS-042025-26",
		}},
		{FileID: "f2", Filename: "scan_b.pdf", Kind: domain.KindPackingList, Data: map[string]any{
			"invoice_number": map[string]any{"value": "wfs-042025-26", "confidence": 0.8},
		}},
	}

	groups, err := uc.Group(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"f1", "f2"}, groups[0].FileIDs)
	assert.Equal(t, "Invoice #WFS-042025-26", groups[0].Reason)
}

func TestGroupFilenameTokenAtThreshold(t *testing.T) {
	a := ExtractMetadata(domain.ExtractedDocument{FileID: "f1", Filename: "USA-14 invoice.pdf", Kind: domain.KindInvoice})
	b := ExtractMetadata(domain.ExtractedDocument{FileID: "f2", Filename: "packing USA-14.pdf", Kind: domain.KindPackingList})
	assert.InDelta(t, GroupThreshold, MatchScore(b, []domain.DocumentMetadata{a}), 1e-9)

	groups, err := NewGroupShipmentsUseCase(nil).Group(context.Background(), []domain.ExtractedDocument{
		{FileID: "f1", Filename: "USA-14 invoice.pdf", Kind: domain.KindInvoice},
		{FileID: "f2", Filename: "packing USA-14.pdf", Kind: domain.KindPackingList},
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"f1", "f2"}, groups[0].FileIDs)
	assert.Equal(t, "2 file(s) grouped", groups[0].Reason)
}

func TestGroupDestinationOnlyStaysSingleton(t *testing.T) {
	docs := []domain.ExtractedDocument{
		{FileID: "f1", Filename: "invoice.pdf", Kind: domain.KindInvoice, Data: map[string]any{
			"ship_to": map[string]any{"country": "US"},
		}},
		{FileID: "f2", Filename: "certificate.pdf", Kind: "certificate", Data: map[string]any{
			"country": "us",
		}},
	}
	a := ExtractMetadata(docs[0])
	b := ExtractMetadata(docs[1])
	assert.InDelta(t, 0.10, MatchScore(b, []domain.DocumentMetadata{a}), 1e-9)

	groups, err := NewGroupShipmentsUseCase(nil).Group(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"f1"}, groups[0].FileIDs)
	assert.Equal(t, []string{"f2"}, groups[1].FileIDs)
}

func TestGroupIsDeterministic(t *testing.T) {
	docs := []domain.ExtractedDocument{
		{FileID: "f1", Filename: "INV-2031.pdf", Kind: domain.KindInvoice, Data: map[string]any{
			"invoice_number": "INV-2031",
			"invoice_date":   "2025-04-02",
			"exporter":       map[string]any{"name": "M/S Shree Textiles Pvt Ltd"},
		}},
		{FileID: "f2", Filename: "PL for INV-2031.pdf", Kind: domain.KindPackingList, Data: map[string]any{
			"exporter_name": "SHREE TEXTILES PRIVATE LIMITED",
			"date":          "04/04/2025",
		}},
		{FileID: "f3", Filename: "other.pdf", Kind: domain.KindInvoice, Data: map[string]any{
			"invoice_number": "X-1",
			"exporter":       map[string]any{"name": "Northwind Traders"},
		}},
	}
	uc := NewGroupShipmentsUseCase(nil)

	first, err := uc.Group(context.Background(), docs)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := uc.Group(context.Background(), docs)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	require.Len(t, first, 2)
	assert.Equal(t, []string{"f1", "f2"}, first[0].FileIDs)
	assert.Equal(t, "Invoice #INV-2031 | Seller: SHREE TEXTILES", first[0].Reason)
}

func TestGroupRejectsDocumentWithoutID(t *testing.T) {
	_, err := NewGroupShipmentsUseCase(nil).Group(context.Background(), []domain.ExtractedDocument{
		{Filename: "a.pdf", Kind: domain.KindInvoice},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}

func TestGroupEmptyInput(t *testing.T) {
	groups, err := NewGroupShipmentsUseCase(nil).Group(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestPairScorePrefersInvoiceOverPO(t *testing.T) {
	a := domain.DocumentMetadata{InvoiceNumber: "A-1", PONumber: "PO-9"}
	b := domain.DocumentMetadata{InvoiceNumber: "B-2", PONumber: "PO-9"}
	assert.Zero(t, pairScore(a, b))

	b.InvoiceNumber = ""
	assert.InDelta(t, weightReference, pairScore(a, b), 1e-9)
}

func TestPairScoreDateWindow(t *testing.T) {
	a := domain.DocumentMetadata{Date: ParseDocumentDate("2025-04-01")}
	b := domain.DocumentMetadata{Date: ParseDocumentDate("2025-04-08")}
	assert.InDelta(t, 0, pairScore(a, b), 1e-9)

	b.Date = ParseDocumentDate("2025-04-01")
	assert.InDelta(t, weightDate, pairScore(a, b), 1e-9)

	b.Date = ParseDocumentDate("2025-04-09")
	assert.Zero(t, pairScore(a, b))
}

func TestFuzzyRatio(t *testing.T) {
	assert.Equal(t, 100, FuzzyRatio("ACME EXPORTS", "ACME EXPORTS"))
	assert.Equal(t, 96, FuzzyRatio("ACME EXPORTS", "ACME EXPORT"))
	assert.Equal(t, 100, FuzzyRatio("", ""))
	assert.Less(t, FuzzyRatio("ACME EXPORTS", "NORTHWIND"), fuzzyNameThreshold)
}

func TestNormalizePartyName(t *testing.T) {
	cases := map[string]string{
		"M/S. Shree Textiles Pvt. Ltd.":          "SHREE TEXTILES",
		"messrs acme exports limited":            "ACME EXPORTS",
		"KRISHNA HANDICRAFTS M/S RAMESH KUMAR":   "KRISHNA HANDICRAFTS",
		"Global Traders Pvt Ltd M/S Sunil Gupta": "GLOBAL TRADERS",
		"Northwind Traders Inc":                  "NORTHWIND TRADERS",
		"  Contoso   & Co  ":                     "CONTOSO",
		"":                                       "",
		"LLC":                                    "LLC",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePartyName(in), "input %q", in)
	}
}

func TestFilenameTokens(t *testing.T) {
	tokens := FilenameTokens("/tmp/Invoice WFS-042025-26 (2024INV).pdf")
	assert.Contains(t, tokens, "WFS-042025-26")
	assert.Contains(t, tokens, "2024INV")
	assert.NotContains(t, tokens, "PDF")

	assert.Empty(t, FilenameTokens("packing list.pdf"))
	assert.Empty(t, FilenameTokens("A1.pdf"))
}

func TestParseDocumentDate(t *testing.T) {
	for _, raw := range []string{"2025-04-02", "02-04-2025", "2/4/2025", "2 Apr 2025", "April 2, 2025"} {
		got := ParseDocumentDate(raw)
		require.NotNil(t, got, raw)
		assert.Equal(t, 2025, got.Year(), raw)
		assert.Equal(t, 4, int(got.Month()), raw)
		assert.Equal(t, 2, got.Day(), raw)
	}
	assert.Nil(t, ParseDocumentDate("sometime next week"))
	assert.Nil(t, ParseDocumentDate(""))
}

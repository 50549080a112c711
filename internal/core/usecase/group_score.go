package usecase

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

const (
	fuzzyNameThreshold = 85
	dateWindowDays     = 7

	weightReference   = 0.35
	weightSeller      = 0.25
	weightBuyer       = 0.15
	weightDate        = 0.10
	weightDestination = 0.10
	weightContainer   = 0.05
	weightFilename    = 0.30
)

// Substitution counts as delete+insert, which yields the Indel ratio.
var indelParams = levenshtein.NewParams().SubCost(2)

// FuzzyRatio returns the 0-100 similarity of two strings.
func FuzzyRatio(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, indelParams)
	return int(math.Round(float64(total-dist) * 100 / float64(total)))
}

// MatchScore scores doc against the members of a group. A document matches
// a group as well as it matches its closest member.
func MatchScore(doc domain.DocumentMetadata, members []domain.DocumentMetadata) float64 {
	best := 0.0
	for _, member := range members {
		if score := pairScore(doc, member); score > best {
			best = score
		}
	}
	return best
}

func pairScore(a, b domain.DocumentMetadata) float64 {
	score := 0.0

	if a.InvoiceNumber != "" && b.InvoiceNumber != "" {
		if strings.EqualFold(a.InvoiceNumber, b.InvoiceNumber) {
			score += weightReference
		}
	} else if a.PONumber != "" && b.PONumber != "" && strings.EqualFold(a.PONumber, b.PONumber) {
		score += weightReference
	}

	if a.SellerName != "" && b.SellerName != "" {
		if ratio := FuzzyRatio(a.SellerName, b.SellerName); ratio >= fuzzyNameThreshold {
			score += weightSeller * float64(ratio) / 100
		}
	}
	if a.BuyerName != "" && b.BuyerName != "" {
		if ratio := FuzzyRatio(a.BuyerName, b.BuyerName); ratio >= fuzzyNameThreshold {
			score += weightBuyer * float64(ratio) / 100
		}
	}

	if a.Date != nil && b.Date != nil {
		days := math.Abs(a.Date.Sub(*b.Date).Hours() / 24)
		days = math.Floor(days)
		if days <= dateWindowDays {
			score += weightDate * (1 - days/dateWindowDays)
		}
	}

	if a.DestinationCountry != "" && b.DestinationCountry != "" && strings.EqualFold(a.DestinationCountry, b.DestinationCountry) {
		score += weightDestination
	}
	if a.ContainerNumber != "" && b.ContainerNumber != "" && strings.EqualFold(a.ContainerNumber, b.ContainerNumber) {
		score += weightContainer
	}

	if tokensIntersect(a.FilenameTokens, b.FilenameTokens) {
		score += weightFilename
	}
	return score
}

func tokensIntersect(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for token := range a {
		if _, ok := b[token]; ok {
			return true
		}
	}
	return false
}

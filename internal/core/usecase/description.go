package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const quantityUnits = `(?:pcs?|pieces?|units?|nos?|sets?|pairs?|kgs?|gms?|lbs?|mts?|ltrs?)`

var (
	// Boundaries are spelled out because \b is ASCII-only; the neighbouring
	// characters are captured and written back.
	quantityRe  = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])(?:\d+\s*)+` + quantityUnits + `(?:\s+` + quantityUnits + `)*($|[^\p{L}\p{N}_])`)
	priceRe     = regexp.MustCompile(`(?i)(?:(?:USD|INR|EUR|GBP|\$|₹|€|£)\s*[\d,]+(?:\.\d+)?)|(?:[\d,]+(?:\.\d+)?\s*(?:USD|INR|EUR|GBP))`)
	referenceRe = regexp.MustCompile(`(?i)(?:PO|REF|SO|SKU|ITEM|LOT|BATCH)\s*[#:]\s*\S+`)
	specialRe   = regexp.MustCompile(`[^\p{L}\p{N}_\s\-]`)
)

// NormalizeDescription canonicalizes a product description into a stable
// cache key. It is idempotent.
func NormalizeDescription(raw string) string {
	text := strings.TrimSpace(raw)
	// After the first pass the text is lower-cased and symbol-free, so every
	// further change strictly shortens it and the loop terminates.
	for text != "" {
		next := normalizeOnce(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func normalizeOnce(text string) string {
	text = quantityRe.ReplaceAllString(text, "${1}${2}")
	text = priceRe.ReplaceAllString(text, "")
	text = referenceRe.ReplaceAllString(text, "")
	text = specialRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ContentHash is the cache key of a normalized description on a trade route.
func ContentHash(normalized, destination, origin string) string {
	sum := sha256.Sum256([]byte(normalized + "|" + destination + "|" + origin))
	return hex.EncodeToString(sum[:])
}

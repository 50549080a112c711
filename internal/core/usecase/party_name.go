package usecase

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var honorificPrefixes = []string{"M/S.", "M/S", "MESSRS.", "MESSRS"}

// Longer suffixes first so "PVT LTD" wins over "LTD".
var legalSuffixes = []string{
	"PRIVATE LIMITED",
	"PVT. LTD.",
	"PVT LTD",
	"CORPORATION",
	"LIMITED",
	"& CO.",
	"& CO",
	"AND CO",
	"CORP.",
	"CORP",
	"INC.",
	"INC",
	"LLC",
	"LLP",
	"LTD.",
	"LTD",
	"CO.",
	"CO",
}

// NormalizePartyName canonicalizes a seller/buyer name for fuzzy comparison.
// Honorific and proprietor clauses are removed before legal suffixes, since
// a suffix may sit in front of the proprietor clause.
func NormalizePartyName(raw string) string {
	name := strings.ToUpper(strings.TrimSpace(norm.NFKC.String(raw)))
	if name == "" {
		return ""
	}
	name = collapseSpaces(name)

	for _, prefix := range honorificPrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && (rest == "" || rest[0] == ' ') {
			name = strings.TrimSpace(rest)
			break
		}
	}

	if idx := strings.Index(name, " M/S "); idx > 0 {
		name = strings.TrimSpace(name[:idx])
	} else if strings.HasSuffix(name, " M/S") {
		name = strings.TrimSpace(strings.TrimSuffix(name, " M/S"))
	}

	for {
		trimmed := strings.TrimRight(name, " ,")
		stripped := false
		for _, suffix := range legalSuffixes {
			if trimmed == suffix {
				continue
			}
			if strings.HasSuffix(trimmed, " "+suffix) {
				trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, suffix))
				stripped = true
				break
			}
		}
		name = trimmed
		if !stripped {
			break
		}
	}
	return strings.TrimRight(name, " ,")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package domain

import "strings"

var countryAliases = map[string]string{
	"USA":                      "US",
	"UNITED STATES":            "US",
	"UNITED STATES OF AMERICA": "US",
	"U.S.A.":                   "US",
	"U.S.":                     "US",
	"IND":                      "IN",
	"INDIA":                    "IN",
	"GBR":                      "GB",
	"UK":                       "GB",
	"UNITED KINGDOM":           "GB",
	"GREAT BRITAIN":            "GB",
	"CAN":                      "CA",
	"CANADA":                   "CA",
	"AUS":                      "AU",
	"AUSTRALIA":                "AU",
	"DEU":                      "DE",
	"GERMANY":                  "DE",
	"FRA":                      "FR",
	"FRANCE":                   "FR",
	"ARE":                      "AE",
	"UAE":                      "AE",
	"UNITED ARAB EMIRATES":     "AE",
	"CHN":                      "CN",
	"CHINA":                    "CN",
	"NLD":                      "NL",
	"NETHERLANDS":              "NL",
}

// NormalizeCountryCode maps free-text country names and alpha-3 codes to
// ISO-3166 alpha-2. Unknown values fall back to fallback.
func NormalizeCountryCode(raw, fallback string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return fallback
	}
	if code, ok := countryAliases[v]; ok {
		return code
	}
	if len(v) == 2 && isASCIIUpper(v) {
		return v
	}
	return fallback
}

// IsCountryCode reports whether code looks like an ISO-3166 alpha-2 code.
func IsCountryCode(code string) bool {
	return len(code) == 2 && isASCIIUpper(code)
}

func isASCIIUpper(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

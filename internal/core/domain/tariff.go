package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "HIGH"
	ConfidenceMedium ConfidenceLabel = "MEDIUM"
	ConfidenceLow    ConfidenceLabel = "LOW"
)

// Trusted reports whether a classification with this label may be applied.
func (c ConfidenceLabel) Trusted() bool {
	switch ConfidenceLabel(strings.ToUpper(strings.TrimSpace(string(c)))) {
	case ConfidenceHigh, ConfidenceMedium:
		return true
	default:
		return false
	}
}

type TariffScenario struct {
	Title          string   `json:"title"`
	Value          *float64 `json:"value,omitempty"`
	IsAdditional   bool     `json:"is_additional"`
	IsRumored      bool     `json:"is_rumored"`
	TariffCode     string   `json:"tariff_code,omitempty"`
	TariffCategory string   `json:"tariff_category,omitempty"`
}

type RemedyFlags struct {
	AddRisk bool `json:"add_risk"`
	CVDRisk bool `json:"cvd_risk"`
}

type ClassifyRequest struct {
	Description        string
	DestinationCountry string
}

// ClassificationOutcome is a successful classifier response. An empty
// BestGuessCode means the classifier answered but found no code.
type ClassificationOutcome struct {
	BestGuessCode  string
	Confidence     ConfidenceLabel
	InlineBaseDuty string
	Raw            json.RawMessage
}

type TariffDetailRequest struct {
	DestinationCountry string
	ClassificationCode string
	OriginCountry      string
}

// TariffDetailLookup is a tariff-detail response; Found is false when the
// provider has no detail for the code.
type TariffDetailLookup struct {
	Found  bool
	Detail TariffDetail
	Raw    json.RawMessage
}

// TariffDetail mirrors the wire payload of the tariff-detail endpoint. It is
// decoded both from live responses and from cached raw payloads.
type TariffDetail struct {
	BaseTariffs []BaseTariff      `json:"tariff_base"`
	Scenarios   []ScenarioPayload `json:"tariff_scenario"`
	Flags       []TariffFlag      `json:"flags,omitempty"`
}

type BaseTariff struct {
	Description string       `json:"description,omitempty"`
	Rules       []TariffRule `json:"rules"`
}

type TariffRule struct {
	Kind  string    `json:"kind"`
	Value RuleValue `json:"value"`
}

type ScenarioPayload struct {
	Title          string     `json:"title"`
	Value          *RuleValue `json:"value,omitempty"`
	IsAdditional   bool       `json:"is_additional"`
	IsRumored      bool       `json:"is_rumored"`
	TariffCode     string     `json:"tariff_code,omitempty"`
	TariffCategory string     `json:"tariff_category,omitempty"`
}

type TariffFlag struct {
	Name  string         `json:"name"`
	Value map[string]any `json:"value,omitempty"`
}

// RuleValue accepts numbers and strings ("3", "3.5", "Free") on the wire.
type RuleValue struct {
	Text string
}

func (v RuleValue) Float() (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v.Text), "%"), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (v RuleValue) IsFree() bool {
	return strings.EqualFold(strings.TrimSpace(v.Text), "free")
}

func (v RuleValue) MarshalJSON() ([]byte, error) {
	if n, ok := v.Float(); ok {
		return json.Marshal(n)
	}
	return json.Marshal(v.Text)
}

func (v *RuleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = RuleValue{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RuleValue{Text: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = RuleValue{Text: n.String()}
	return nil
}

// ClassificationResult is a resolved classification ready to apply to items.
type ClassificationResult struct {
	ImportCode             string
	ExportCodeFallback     string
	DutyRate               *float64
	BaseDutyRate           *float64
	Confidence             ConfidenceLabel
	Scenarios              []TariffScenario
	RemedyFlags            *RemedyFlags
	ClassifierDescription  string
	ClassificationResponse json.RawMessage
	TariffResponse         json.RawMessage
}

// ClassificationCacheEntry is one persisted classification keyed by
// content hash.
type ClassificationCacheEntry struct {
	ContentHash            string          `json:"content_hash"`
	NormalizedDescription  string          `json:"normalized_description"`
	DestinationCountry     string          `json:"destination_country"`
	OriginCountry          string          `json:"origin_country"`
	ExportCode             string          `json:"export_code,omitempty"`
	ImportCode             string          `json:"import_code,omitempty"`
	DutyRate               *float64        `json:"duty_rate,omitempty"`
	ConfidenceLabel        ConfidenceLabel `json:"confidence_label"`
	ClassifierDescription  string          `json:"classifier_description,omitempty"`
	ClassificationResponse json.RawMessage `json:"classification_response,omitempty"`
	TariffResponse         json.RawMessage `json:"tariff_response,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// ClassificationPayload mirrors the wire payload of the autonomous
// classification endpoint, unwrapped from its "data" envelope.
type ClassificationPayload struct {
	BestGuessCode        string `json:"best_guess_code"`
	Confidence           string `json:"confidence"`
	SuggestedDescription string `json:"suggested_description,omitempty"`
	TariffDetail         *struct {
		RateOfDuty struct {
			General string `json:"general"`
		} `json:"rate_of_duty"`
	} `json:"tariff_detail,omitempty"`
}

// InlineBaseDuty is the general rate of duty embedded in the payload, if any.
func (p ClassificationPayload) InlineBaseDuty() string {
	if p.TariffDetail == nil {
		return ""
	}
	return p.TariffDetail.RateOfDuty.General
}

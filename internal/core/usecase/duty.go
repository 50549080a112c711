package usecase

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

var dutyPercentRe = regexp.MustCompile(`(\d*\.?\d+)\s*%`)

// DutyBreakdown is the duty math derived from one tariff-detail payload.
// HasRate is false when no base rate could be determined, in which case the
// rates must not be applied.
type DutyBreakdown struct {
	BaseRate       float64
	CumulativeRate float64
	HasRate        bool
	Scenarios      []domain.TariffScenario
	RemedyFlags    *domain.RemedyFlags
}

// CalculateDuty combines the base duty with every additional scenario.
// Non-additional and rumored scenarios are surfaced but not summed.
func CalculateDuty(detail domain.TariffDetail) DutyBreakdown {
	out := DutyBreakdown{
		Scenarios:   scenarioSummaries(detail.Scenarios),
		RemedyFlags: remedyFlags(detail.Flags),
	}

	base, ok := baseRate(detail.BaseTariffs)
	if !ok {
		return out
	}
	total := base
	for _, s := range out.Scenarios {
		if s.IsAdditional && s.Value != nil {
			total += *s.Value
		}
	}
	out.BaseRate = base
	out.CumulativeRate = roundRate(total)
	out.HasRate = true
	return out
}

// ParseDutyPercent reads a duty figure such as "3%", "5.5 %" or "Free".
func ParseDutyPercent(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	if strings.EqualFold(text, "free") {
		return 0, true
	}
	m := dutyPercentRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func baseRate(bases []domain.BaseTariff) (float64, bool) {
	if len(bases) == 0 {
		return 0, false
	}
	first := bases[0]
	if len(first.Rules) > 0 {
		rule := first.Rules[0]
		switch {
		case strings.EqualFold(rule.Kind, "free") || rule.Value.IsFree():
			return 0, true
		case strings.EqualFold(rule.Kind, "percent"):
			if v, ok := rule.Value.Float(); ok {
				return v, true
			}
		}
	}
	return ParseDutyPercent(first.Description)
}

func scenarioSummaries(payload []domain.ScenarioPayload) []domain.TariffScenario {
	if len(payload) == 0 {
		return nil
	}
	out := make([]domain.TariffScenario, 0, len(payload))
	for _, p := range payload {
		s := domain.TariffScenario{
			Title:          p.Title,
			IsAdditional:   p.IsAdditional,
			IsRumored:      p.IsRumored,
			TariffCode:     p.TariffCode,
			TariffCategory: p.TariffCategory,
		}
		if p.Value != nil {
			if v, ok := p.Value.Float(); ok {
				s.Value = &v
			}
		}
		out = append(out, s)
	}
	return out
}

func remedyFlags(flags []domain.TariffFlag) *domain.RemedyFlags {
	for _, f := range flags {
		if f.Name != "remedy" {
			continue
		}
		add, _ := f.Value["possible_add_required_indicator"].(bool)
		cvd, _ := f.Value["possible_cvd_duty_required_indicator"].(bool)
		return &domain.RemedyFlags{AddRisk: add, CVDRisk: cvd}
	}
	return nil
}

func roundRate(v float64) float64 {
	return math.Round(v*100) / 100
}

package gaia

import (
	"net/http"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/resilience"
)

// mapGaiaError turns a rejected credential into ErrUnauthorized so callers
// stop instead of retrying; everything else follows the shared HTTP rules.
func mapGaiaError(operation string, err error) error {
	if code, ok := resilience.StatusCode(err); ok && code == http.StatusUnauthorized {
		return domain.WrapError(domain.ErrUnauthorized, operation, err)
	}
	return resilience.WrapTemporary(operation, err, resilience.ClassifyHTTPError)
}

func hasStatus(err error, code int) bool {
	got, ok := resilience.StatusCode(err)
	return ok && got == code
}

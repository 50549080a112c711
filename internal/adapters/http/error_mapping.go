package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

// statusForError maps domain kinds to HTTP. ErrUnauthorized only ever comes
// from the tariff API rejecting our credentials, so it is a gateway failure
// rather than the caller's problem.
func statusForError(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

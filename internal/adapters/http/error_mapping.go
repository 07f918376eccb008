package httpadapter

import (
	"net/http"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTransientStorage):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrLedgerConsistency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

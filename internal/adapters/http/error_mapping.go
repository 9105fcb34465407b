package httpadapter

import (
	"net/http"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrStillProcessing):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrEvidenceNotFound), domain.IsKind(err, domain.ErrVaultNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ...}. A still-processing error also
// carries the remote status so callers know to retry.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	if status, ok := domain.StillProcessingStatus(err); ok {
		body["status"] = status
		body["retryable"] = true
	}
	writeJSON(w, mapErrorToHTTPStatus(err), body)
}

package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service layer errors onto HTTP responses.
// Ownership misses surface as plain 404s so resource existence is never
// revealed across scope boundaries.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrPreconditionFailed),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrEmptyPackage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBundlingFailed):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid request")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

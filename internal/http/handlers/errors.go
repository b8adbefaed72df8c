package handlers

import (
	"errors"
	"net/http"
	"strings"

	"adstudio/internal/domain"
)

// writeError maps domain errors onto HTTP responses. Unexpected errors are
// logged and reported as a generic 500.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_error", publicMessage(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrEngine):
		a.error(w, http.StatusInternalServerError, "engine_error", "the generation engine returned an error")
	case errors.Is(err, domain.ErrConnection):
		a.error(w, http.StatusInternalServerError, "connection_error", "could not reach the generation engine")
	default:
		a.Logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// publicMessage strips the sentinel prefix from a wrapped error.
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, sentinel.Error()+": "); trimmed != "" {
		return trimmed
	}
	return msg
}

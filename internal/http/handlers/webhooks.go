package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"adstudio/internal/domain"
)

// EngineCallback receives job results posted by the engine.
func (a *App) EngineCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.bodyLimit()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, r, fmt.Errorf("%w: callback body too large", domain.ErrValidation))
			return
		}
		a.writeError(w, r, fmt.Errorf("%w: read callback body", domain.ErrValidation))
		return
	}

	ack, err := a.Webhooks.Receive(r.Context(), raw, r.Header.Get("X-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			a.error(w, http.StatusUnauthorized, "invalid_signature", "invalid signature")
			return
		}
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"message": ack.Message,
		"job_id":  ack.JobID,
		"status":  ack.Status,
		"applied": ack.Applied,
	})
}

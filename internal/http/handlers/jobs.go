package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"adstudio/internal/domain"
	"adstudio/internal/jobs"
)

type createJobResponse struct {
	JobID          string    `json:"job_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	OutputImageURL string    `json:"output_image_url,omitempty"`
	Message        string    `json:"message,omitempty"`
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	uid := a.currentUserID(r)
	if uid == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var in jobs.CreateInput
	if err := a.decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	res, err := a.Jobs.Create(r.Context(), uid, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Accepted {
		code = http.StatusAccepted
	}
	a.json(w, code, createJobResponse{
		JobID:          res.Job.ID,
		Status:         string(res.Job.Status),
		CreatedAt:      res.Job.CreatedAt,
		OutputImageURL: res.Job.OutputImage,
		Message:        res.Message,
	})
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	uid := a.currentUserID(r)
	if uid == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	list, err := a.Jobs.List(r.Context(), uid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	base := a.Jobs.Settings().PublicBaseURL
	views := make([]jobView, 0, len(list))
	for i := range list {
		views = append(views, newJobView(base, &list[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": views})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	uid := a.currentUserID(r)
	if uid == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobView(a.Jobs.Settings().PublicBaseURL, job))
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	uid := a.currentUserID(r)
	if uid == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Jobs.Delete(r.Context(), id, uid); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted": true, "job_id": id})
}

// JobImage serves a stored input image to the engine. It is reachable
// without a token because the engine fetches it by URL.
func (a *App) JobImage(w http.ResponseWriter, r *http.Request) {
	src, err := a.Jobs.ImageFor(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slot"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if src.Redirect != "" {
		http.Redirect(w, r, src.Redirect, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", src.Image.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(src.Image.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(src.Image.Data)
	}
}

func (a *App) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.bodyLimit()))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrValidation, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", domain.ErrValidation)
		}
		return fmt.Errorf("%w: invalid json payload", domain.ErrValidation)
	}
	return nil
}

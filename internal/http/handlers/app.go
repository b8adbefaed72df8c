package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"adstudio/internal/jobs"
	"adstudio/internal/middleware"
	"adstudio/internal/webhook"
)

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Jobs         *jobs.Coordinator
	Webhooks     *webhook.Receiver
	Proxy        *ImageProxy
	DB           Pinger
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": slug, "message": msg},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) bodyLimit() int64 {
	if a.MaxBodyBytes > 0 {
		return a.MaxBodyBytes
	}
	return 20 << 20
}

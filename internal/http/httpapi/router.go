package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"adstudio/internal/http/handlers"
	"adstudio/internal/metrics"
	"adstudio/internal/middleware"
)

type Options struct {
	Auth            *middleware.Authenticator
	Logger          zerolog.Logger
	Metrics         *metrics.Middleware
	Registry        *prometheus.Registry
	CORSOrigins     []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Handler)
	}

	r.Get("/v1/healthz", app.Health)
	if opts.Registry != nil {
		r.Handle("/metrics", metrics.Handler(opts.Registry))
	}

	// Reached by the engine, not by users.
	r.Get("/v1/jobs/{id}/images/{slot}", app.JobImage)
	r.Head("/v1/jobs/{id}/images/{slot}", app.JobImage)
	r.Post("/v1/webhooks/engine", app.EngineCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.Auth))

		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/v1/jobs", app.CreateJob)
		r.Get("/v1/jobs", app.ListJobs)
		r.Get("/v1/jobs/{id}", app.GetJob)
		r.Delete("/v1/jobs/{id}", app.DeleteJob)
		r.Get("/v1/proxy-image", app.ProxyImage)
	})

	return r
}

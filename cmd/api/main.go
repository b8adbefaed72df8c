package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"adstudio/internal/adapter/repo"
	"adstudio/internal/domain"
	"adstudio/internal/http/handlers"
	httpapi "adstudio/internal/http/httpapi"
	"adstudio/internal/imagegen"
	"adstudio/internal/infra"
	"adstudio/internal/jobs"
	"adstudio/internal/metrics"
	"adstudio/internal/middleware"
	"adstudio/internal/storage"
	"adstudio/internal/validation"
	"adstudio/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	var (
		store domain.JobRepository
		db    handlers.Pinger
	)
	switch cfg.StoreDriver {
	case infra.StoreDriverMemory:
		logger.Warn().Msg("STORE_DRIVER=memory: jobs are lost on restart and not shared between instances")
		store = repo.NewMemoryJobRepository()
	default:
		if cfg.MigrationsAuto {
			if err := infra.Migrate(ctx, cfg.DatabaseURL, infra.MigrateUp, logger); err != nil {
				logger.Fatal().Err(err).Msg("failed to apply migrations")
			}
		}
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		store = repo.NewJobRepository(infra.NewSQLRunner(dbpool, logger))
		db = dbpool
	}

	locator := newLocator(cfg, logger)

	mode := imagegen.ModeBoundedWait
	if cfg.DispatchMode == infra.DispatchModeAsync {
		mode = imagegen.ModeAsync
	}
	engine := imagegen.NewEngineClient(imagegen.EngineOptions{
		WebhookURL:   cfg.EngineWebhookURL,
		APIKey:       cfg.EngineAPIKey,
		SyncTimeout:  cfg.EngineSyncTimeout,
		AsyncTimeout: cfg.EngineAsyncTimeout,
		Logger:       logger.With().Str("component", "engine").Logger(),
	})
	policy := imagegen.Policy{
		PriorityKeys:    cfg.ExtractPriorityKeys,
		InlineThreshold: cfg.ExtractInlineThreshold,
		DefaultMIME:     cfg.ExtractDefaultMIME,
	}

	jobMetrics := metrics.NewJobMetrics()
	httpMetrics := metrics.NewMiddleware("adstudio-api")
	registry := metrics.NewRegistry(append(httpMetrics.Collectors(), jobMetrics.Collectors()...)...)
	v := validation.New()

	coordinator := jobs.NewCoordinator(jobs.Options{
		Settings: jobs.Settings{
			DispatchMode:  mode,
			PublicBaseURL: cfg.PublicBaseURL,
			Policy:        policy,
		},
		Store:      store,
		Locator:    locator,
		Dispatcher: engine,
		Validator:  v,
		Metrics:    jobMetrics,
		Logger:     logger.With().Str("component", "jobs").Logger(),
	})
	receiver := webhook.NewReceiver(webhook.Options{
		Secret:    cfg.EngineCallbackSecret,
		Store:     store,
		Extractor: imagegen.NewExtractor(policy),
		Validator: v,
		Metrics:   jobMetrics,
		Logger:    logger.With().Str("component", "webhook").Logger(),
	})
	if !receiver.VerifiesSignatures() {
		logger.Warn().Msg("ENGINE_CALLBACK_SECRET is not set: engine callbacks are accepted without signature verification and anyone who can reach /v1/webhooks/engine can finalize jobs")
	}

	app := &handlers.App{
		Jobs:         coordinator,
		Webhooks:     receiver,
		Proxy:        handlers.NewImageProxy(cfg.ImageSourceAllowlist, nil),
		DB:           db,
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Auth:            middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		Logger:          logger,
		Metrics:         httpMetrics,
		Registry:        registry,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreDriver).
			Str("dispatch_mode", mode.String()).
			Str("image_locator", cfg.ImageLocator).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newLocator(cfg *infra.Config, logger zerolog.Logger) storage.Locator {
	if cfg.ImageLocator == infra.ImageLocatorMinio {
		l, err := storage.NewMinioLocator(storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			TTL:       cfg.MinioPresignTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure minio locator")
		}
		return l
	}
	l, err := storage.NewPublicLocator(cfg.PublicBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure public locator")
	}
	return l
}

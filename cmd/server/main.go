package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/postpilot/link-server-go/internal/config"
	"github.com/postpilot/link-server-go/internal/database"
	"github.com/postpilot/link-server-go/internal/handler"
	"github.com/postpilot/link-server-go/internal/jobs"
	"github.com/postpilot/link-server-go/internal/linkstore"
	"github.com/postpilot/link-server-go/internal/middleware"
	"github.com/postpilot/link-server-go/internal/platform"
	"github.com/postpilot/link-server-go/internal/redis"
	"github.com/postpilot/link-server-go/internal/repository"
	"github.com/postpilot/link-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	registry := platform.NewRegistry(cfg)
	if len(registry.Names()) == 0 {
		log.Warn().Msg("no platforms configured: every initiate will be rejected")
	} else {
		log.Info().Strs("platforms", registry.Names()).Msg("platform registry loaded")
	}

	accountRepo := repository.NewSocialAccountRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewAppSessionRepository(db.DB)

	linkStore := linkstore.NewRedisStore(redisClient.Client, cfg.PendingLinkTTL())

	linkService := service.NewLinkService(
		registry, linkStore, accountRepo, userRepo,
		cfg.AppBaseURL, cfg.EncryptionKey,
	)

	browserSessionMiddleware := middleware.NewBrowserSessionMiddleware(isProduction)
	authMiddleware := middleware.NewAuthMiddleware(sessionRepo, userRepo, cfg.SessionSecret)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	rateLimitMiddleware := middleware.NewIPRateLimitMiddleware(redisClient.Client, config.HandshakeRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	linkHandler := handler.NewLinkHandler(linkService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/social-accounts", func(r chi.Router) {
		// Browser-facing redirect endpoints: anonymous, session-keyed.
		r.Group(func(r chi.Router) {
			r.Use(browserSessionMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)
			r.Get("/oauth/{platform}/initiate", linkHandler.Initiate)
			r.Get("/oauth/{platform}/callback", linkHandler.Callback)
		})

		// Authenticated JSON endpoints.
		r.Group(func(r chi.Router) {
			r.Use(browserSessionMiddleware.Handler)
			r.Use(authMiddleware.Handler)
			r.Use(csrfMiddleware.Handler)
			r.Post("/oauth/complete", linkHandler.Complete)
			r.Get("/", linkHandler.ListAccounts)
			r.Get("/platforms", linkHandler.ListPlatforms)
			r.Delete("/{platform}", linkHandler.Disconnect)
		})
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, linkStore, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/homeadapt/securevoice/internal/config"
	"github.com/homeadapt/securevoice/internal/database"
	"github.com/homeadapt/securevoice/internal/handler"
	"github.com/homeadapt/securevoice/internal/jobs"
	"github.com/homeadapt/securevoice/internal/middleware"
	"github.com/homeadapt/securevoice/internal/redis"
	"github.com/homeadapt/securevoice/internal/registry"
	"github.com/homeadapt/securevoice/internal/repository"
	"github.com/homeadapt/securevoice/internal/service"
	"github.com/homeadapt/securevoice/internal/session"
	"github.com/homeadapt/securevoice/internal/token"
	"github.com/homeadapt/securevoice/internal/util"
)

const version = "1.0.0"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != "" || os.Getenv("RAILWAY_ENVIRONMENT") != ""
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

	tenantRepo := repository.NewTenantRepository(db.DB)
	deviceRepo := repository.NewDeviceRepository(db.DB)

	tenants, err := registry.Load(context.Background(), tenantRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tenant registry")
	}
	if tenants.Len() == 0 {
		log.Warn().Msg("tenant registry is empty: no webhook request can resolve an identity")
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = util.GenerateToken()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to generate jwt secret")
		}
		log.Warn().Msg("JWT_SECRET not set, generated ephemeral secret: device tokens will not survive restarts")
	}

	sessions := session.NewStore(cfg.SessionTTL())
	issuer := token.NewIssuer([]byte(jwtSecret), cfg.TokenTTL(), deviceRepo)

	deviceService := service.NewDeviceService(deviceRepo, tenants, issuer)
	forwardService := service.NewForwardService()
	resolver := service.NewResolver(tenants, sessions, issuer, cfg.WebhookSharedSecret, cfg.DefaultTenantID)

	authLimiter := middleware.NewAuthLimiter(redisClient.Client, config.AuthAttemptsPerMin)
	adminAuth := middleware.NewAdminAuth(cfg.AdminToken)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)

	webhookHandler := handler.NewWebhookHandler(resolver, sessions, forwardService, cfg.AssistantID)
	sessionHandler := handler.NewSessionHandler(tenants, sessions)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	adminHandler := handler.NewAdminHandler(deviceService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimit.Handler)

	r.Get("/", handler.Root(version))
	r.Get("/health", handler.Health)

	r.Group(func(r chi.Router) {
		r.Use(authLimiter.Handler)
		r.Post("/sessions", sessionHandler.Create)
		r.Post("/device/auth", deviceHandler.Auth)
		r.Post("/device/refresh", deviceHandler.Refresh)
	})

	r.Post("/webhook", webhookHandler.Handle)

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	sweeper := jobs.NewSweeperJob(sessions, config.SessionSweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

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

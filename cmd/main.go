package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/duynhne/session-service/config"
	database "github.com/duynhne/session-service/internal/core"
	"github.com/duynhne/session-service/internal/core/cipher"
	"github.com/duynhne/session-service/internal/core/repository"
	logicv1 "github.com/duynhne/session-service/internal/logic/v1"
	"github.com/duynhne/session-service/internal/web"
	"github.com/duynhne/session-service/middleware"
	"github.com/duynhne/session-service/pkg/logger/zerolog"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	// Initialize Zerolog with LOG_LEVEL from config
	zerolog.Setup(cfg.Logging.Level)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Initialize database connection pool (pgx)
	pool, err := database.Connect(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Database connection pool established")

	// Session store (Redis)
	rdb, err := database.ConnectRedis(context.Background(), cfg.Redis, cfg.Auth.StoreTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to session store")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Session store connected")

	store := repository.NewRedisStore(rdb, cfg.Auth.StoreTimeout)

	mode, err := cipher.ParseMode(cfg.Auth.CipherMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid cipher mode")
	}
	if mode == cipher.ModeCTR {
		log.Warn().Msg("Legacy CTR password cipher enabled; payloads are not authenticated")
	}

	sessions, err := logicv1.NewSessionManager(store, logicv1.SessionConfig{
		Secret:           []byte(cfg.Auth.TokenSecret),
		AccessTokenTTL:   cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:  cfg.Auth.RefreshTokenTTL,
		EncryptionKeyTTL: cfg.Auth.EncryptionKeyTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session manager")
	}

	auth := logicv1.NewAuthService(repository.NewUserRepository(pool), sessions, cipher.New(mode))

	var isShuttingDown atomic.Bool
	r := web.NewRouter(auth, store, &isShuttingDown)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting session service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation.
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	// Shutdown context with configurable timeout
	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Close session store
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Session store close error")
	} else {
		log.Info().Msg("Session store closed")
	}

	// 3. Close database connections
	pool.Close()
	log.Info().Msg("Database pool closed")

	// 4. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}

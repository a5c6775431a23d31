// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Readersrv is the entry point for the Yomira reading-session engine's HTTP
server.

The server multiplexes many concurrently open reading sessions, each one a
five-lane priority page-download scheduler backed by a content-addressed
on-disk image cache, sitting behind a thin session-scoped REST API.

Usage:

	go run cmd/readersrv/main.go [flags]

The flags/environment variables are:

	SERVER_PORT       Port to listen on (default: 8080)
	ENVIRONMENT       deployment environment (development, production)
	DATABASE_URL      Postgres connection string (required)
	REDIS_URL         Redis connection string (required)
	CATALOG_BASE_URL  Base URL of the upstream chapter/page catalog (required)
	IMAGE_CACHE_ROOT  Root directory of the on-disk image cache

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Load and validate environment variables.
 3. Storage: Establish connections to Postgres and Redis.
 4. Migration: Run idempotent schema updates.
 5. Wiring: Inject dependencies into the reading engine and its handlers.
 6. Server: Bind HTTP listener and handle graceful shutdown.

No business logic lives here. This file is strictly for orchestration and wiring.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dk5761/reader/internal/api"
	"github.com/dk5761/reader/internal/catalog"
	"github.com/dk5761/reader/internal/platform/config"
	"github.com/dk5761/reader/internal/platform/constants"
	"github.com/dk5761/reader/internal/platform/migration"
	pgstore "github.com/dk5761/reader/internal/platform/postgres"
	redisstore "github.com/dk5761/reader/internal/platform/redis"
	"github.com/dk5761/reader/internal/platform/sec"
	"github.com/dk5761/reader/internal/reader/cache"
	"github.com/dk5761/reader/internal/reader/engine"
	"github.com/dk5761/reader/internal/reader/progress"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries for trace correlation
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Yomira] service_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Adjust log level if debug mode is explicitly enabled
	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. A 30s deadline prevents the app from hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. PostgreSQL
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// # 4. Redis
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// # 5. Migrations
	if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// # 6. Platform Services
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	if err != nil {
		return fmt.Errorf("initialize jwt service: %w", err)
	}

	// # 7. Health Wiring
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// # 8. Reading Engine Collaborators
	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, 10*time.Second)
	imageCache := cache.New(cfg.ImageCacheRoot, cache.NewOSFilesystem(), cache.NewHTTPDownloader(15*time.Second), cache.NewStdImageDecoder(), log)
	progressStore := progress.NewPostgresStore(pool)
	queryInvalidator := progress.NewRedisInvalidator(rdb)
	readerCfg := cfg.ReaderConfig()

	manager := engine.NewManager(func() *engine.Session {
		return engine.New(readerCfg, catalogClient, imageCache, progressStore, queryInvalidator, log)
	})

	// # 9. API Assembly
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Session:   api.NewSessionHandler(manager, jwtSvc, cfg.SessionTokenTTL, log),
	}

	// Create a background context for the whole application lifecycle
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	server := api.NewServer(appCtx, cfg, log, jwtSvc, handlers)

	// # 10. Lifecycle Handling
	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http_server_crash: %w", err)
		}
	}()

	log.Info("reader_server_running", slog.String("port", cfg.ServerPort))

	// Block until signal or error
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		return err
	}

	// Start Graceful Shutdown Sequence
	appCancel() // Signal background workers to stop

	log.Info("shutting_down_reader_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return fmt.Errorf("server_shutdown_failed: %w", err)
	}

	log.Info("graceful_shutdown_complete")
	return nil
}

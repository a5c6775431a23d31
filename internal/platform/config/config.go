// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dk5761/reader/internal/reader/model"
)

// # Configuration Schema

// Config holds all runtime configuration for the Yomira reader API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Cryptographic keys for session token signing
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// SessionTokenTTL is how long a session access token remains valid.
	SessionTokenTTL time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"24h"`

	// CatalogBaseURL is the root of the REST catalog service consulted by
	// [catalog.Client] for chapter/page/work-meta lookups.
	CatalogBaseURL string `env:"CATALOG_BASE_URL,required"`

	// ImageCacheRoot is the filesystem root of the content-addressed page cache.
	ImageCacheRoot string `env:"IMAGE_CACHE_ROOT" envDefault:"./data/image-cache"`

	// Reading-window tunables (spec.md §6.3). [model.Config.Normalize] clamps
	// each value into its range, so an unset (zero) value becomes the lower
	// bound of its range; only an empty backoff schedule and zero debounce
	// and dup-guard values take the [model.DefaultConfig] values.
	WindowAhead             int   `env:"READER_WINDOW_AHEAD"`
	WindowBehind            int   `env:"READER_WINDOW_BEHIND"`
	ForegroundConcurrency   int   `env:"READER_FOREGROUND_CONCURRENCY"`
	BackgroundConcurrency   int   `env:"READER_BACKGROUND_CONCURRENCY"`
	ChapterPreloadLeadPages int   `env:"READER_CHAPTER_PRELOAD_LEAD_PAGES"`
	MaxAutoRetries          int   `env:"READER_MAX_AUTO_RETRIES"`
	MaxWindow               int   `env:"READER_MAX_WINDOW"`
	ProgressDebounceMS      int   `env:"READER_PROGRESS_DEBOUNCE_MS"`
	TimelineDupGuardMS      int   `env:"READER_TIMELINE_DUP_GUARD_MS"`
	AutoRetryBackoffMS      []int `env:"READER_AUTO_RETRY_BACKOFF_MS" envSeparator:","`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ReaderConfig maps the environment-sourced window tunables onto a
// [model.Config] and clamps it with [model.Config.Normalize] (zero-valued
// range fields become their lower bound; see the field comment above).
func (c *Config) ReaderConfig() model.Config {
	cfg := model.Config{
		WindowAhead:             c.WindowAhead,
		WindowBehind:            c.WindowBehind,
		ForegroundConcurrency:   c.ForegroundConcurrency,
		BackgroundConcurrency:   c.BackgroundConcurrency,
		ChapterPreloadLeadPages: c.ChapterPreloadLeadPages,
		MaxAutoRetries:          c.MaxAutoRetries,
		AutoRetryBackoffMS:      c.AutoRetryBackoffMS,
		MaxWindow:               c.MaxWindow,
		ProgressDebounceMS:      c.ProgressDebounceMS,
		TimelineDupGuardMS:      c.TimelineDupGuardMS,
	}
	return cfg.Normalize()
}

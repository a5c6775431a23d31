// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/platform/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/reading")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/priv.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/pub.pem")
	t.Setenv("CATALOG_BASE_URL", "https://catalog.internal")
}

func TestLoad_AppliesDefaultsForOptionalFields(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "./data/image-cache", cfg.ImageCacheRoot)
	assert.Equal(t, 24*60*60*1e9, int64(cfg.SessionTokenTTL))
}

func TestLoad_MissingRequiredFieldReturnsError(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/priv.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/pub.pem")
	t.Setenv("CATALOG_BASE_URL", "https://catalog.internal")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestIsDevelopmentAndIsProduction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestReaderConfig_NormalizesZeroValuedTunables(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	readerCfg := cfg.ReaderConfig()
	assert.Equal(t, 3, readerCfg.WindowAhead)
	assert.Equal(t, 1, readerCfg.ForegroundConcurrency)
	assert.Equal(t, []int{750, 2000}, readerCfg.AutoRetryBackoffMS)
}

func TestReaderConfig_PassesThroughExplicitTunables(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("READER_WINDOW_AHEAD", "8")
	t.Setenv("READER_MAX_WINDOW", "5")

	cfg, err := config.Load()
	require.NoError(t, err)

	readerCfg := cfg.ReaderConfig()
	assert.Equal(t, 8, readerCfg.WindowAhead)
	assert.Equal(t, 5, readerCfg.MaxWindow)
}

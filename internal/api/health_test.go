// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dk5761/reader/internal/api"
)

func TestLiveness_AlwaysReturnsOK(t *testing.T) {
	liveness, _ := api.NewHealthHandlers(api.HealthDependencies{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	liveness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_AllDependenciesHealthyReturnsOK(t *testing.T) {
	_, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error { return nil },
		CheckCache:    func() error { return nil },
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	readiness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_FailingDependencyReturnsServiceUnavailable(t *testing.T) {
	_, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error { return errors.New("connection refused") },
		CheckCache:    func() error { return nil },
	}, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	readiness(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/api"
	"github.com/dk5761/reader/internal/catalog"
	"github.com/dk5761/reader/internal/platform/middleware"
	"github.com/dk5761/reader/internal/platform/sec"
	"github.com/dk5761/reader/internal/reader/engine"
	"github.com/dk5761/reader/internal/reader/model"
)

type fakeCache struct{}

func (f *fakeCache) Fetch(_ context.Context, _, url string, _ map[string]string) (*model.CachedArtifact, error) {
	return &model.CachedArtifact{LocalPath: "/tmp/" + url, Width: 800, Height: 1200}, nil
}

func (f *fakeCache) EvictChapter(string) {}

type fakeTokens struct{}

func (f *fakeTokens) GenerateSessionToken(sessionKey, _, _, _ string, _ time.Duration) (string, error) {
	return "token-" + sessionKey, nil
}

type fakeVerifier struct{}

func (f *fakeVerifier) VerifyToken(tokenStr string) (*sec.SessionClaims, error) {
	if len(tokenStr) < len("token-") || tokenStr[:len("token-")] != "token-" {
		return nil, fmt.Errorf("malformed test token")
	}
	sessionKey := tokenStr[len("token-"):]
	return &sec.SessionClaims{SessionKey: sessionKey}, nil
}

func testCatalog() *catalog.Static {
	static := catalog.NewStatic()
	meta := model.WorkMeta{SourceID: "src", WorkID: "work-1", Title: "Test Work"}
	chapters := []model.ChapterDescriptor{
		{ID: "ch-1", Ordinal: 0, URL: "https://example.test/ch-1"},
		{ID: "ch-2", Ordinal: 1, URL: "https://example.test/ch-2"},
	}
	static.AddWork("src", "work-1", meta, chapters)
	static.AddChapter("ch-1", []model.PageDescriptor{
		{ID: "ch-1-p0", ChapterID: "ch-1", PageIndex: 0, ImageURL: "https://example.test/ch-1/0.jpg"},
		{ID: "ch-1-p1", ChapterID: "ch-1", PageIndex: 1, ImageURL: "https://example.test/ch-1/1.jpg"},
	})
	static.AddChapter("ch-2", []model.PageDescriptor{
		{ID: "ch-2-p0", ChapterID: "ch-2", PageIndex: 0, ImageURL: "https://example.test/ch-2/0.jpg"},
	})
	return static
}

func testReaderConfig() model.Config {
	cfg := model.Config{
		ChapterPreloadLeadPages: 2,
		MaxWindow:               2,
		ProgressDebounceMS:      10,
		TimelineDupGuardMS:      10,
	}
	return cfg.Normalize()
}

func newTestRouter(t *testing.T) (router chi.Router, manager *engine.Manager) {
	t.Helper()
	cat := testCatalog()
	manager = engine.NewManager(func() *engine.Session {
		return engine.New(testReaderConfig(), cat, &fakeCache{}, nil, nil, nil)
	})

	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{}, nil)
	sessionHandler := api.NewSessionHandler(manager, &fakeTokens{}, time.Hour, nil)

	root := chi.NewRouter()
	root.Use(middleware.Authenticate(&fakeVerifier{}))
	root.Get("/healthz", liveness)
	root.Get("/readyz", readiness)
	root.Mount("/v1/sessions", sessionHandler.Routes())
	return root, manager
}

func openTestSession(t *testing.T, router chi.Router) (token string, body map[string]any) {
	t.Helper()
	reqBody, err := json.Marshal(map[string]any{
		"source_id":        "src",
		"work_id":          "work-1",
		"entry_chapter_id": "ch-1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	token, _ = envelope.Data["token"].(string)
	require.NotEmpty(t, token)
	return token, envelope.Data
}

func TestOpenSession_ReturnsTokenAndProjection(t *testing.T) {
	router, _ := newTestRouter(t)
	_, data := openTestSession(t, router)

	projection, ok := data["projection"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "work-1", projection["meta"].(map[string]any)["work_id"])
}

func TestOpenSession_MissingFieldReturnsValidationError(t *testing.T) {
	router, _ := newTestRouter(t)

	reqBody, _ := json.Marshal(map[string]any{"source_id": "src"})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProjection_WithoutTokenReturnsUnauthorized(t *testing.T) {
	router, _ := newTestRouter(t)
	_, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionKey+"/projection", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetProjection_WithValidTokenSucceeds(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionKey+"/projection", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSnapshot_ReturnsSchedulerStats(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionKey+"/snapshot", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Data, "pages")
	assert.Contains(t, envelope.Data, "stats")
}

func TestGetSnapshot_LaneFilterExcludesOtherLanes(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionKey+"/snapshot?lane=next_chapter_prefetch", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	pages, ok := envelope.Data["pages"].(map[string]any)
	require.True(t, ok)
	for _, raw := range pages {
		page := raw.(map[string]any)
		if lane, hasLane := page["lane"]; hasLane {
			assert.Equal(t, "next_chapter_prefetch", lane)
		}
	}
}

func TestOpenSession_ProjectionIncludesWorkSlug(t *testing.T) {
	router, _ := newTestRouter(t)
	_, data := openTestSession(t, router)

	projection := data["projection"].(map[string]any)
	assert.Equal(t, "test-work", projection["meta"].(map[string]any)["slug"])
}

func TestSetCursor_MovesCursorAndReturnsProjection(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	reqBody, _ := json.Marshal(map[string]any{"flat_index": 1})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionKey+"/cursor", bytes.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSwitchChapter_ToImmediateNeighborSucceeds(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionKey+"/switch/ch-2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSwitchChapter_ToUnreachableChapterReturnsValidationError(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionKey+"/switch/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryPage_Succeeds(t *testing.T) {
	router, _ := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionKey+"/retry/ch-1-p0", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCloseSession_RemovesItFromManager(t *testing.T) {
	router, manager := newTestRouter(t)
	token, data := openTestSession(t, router)
	sessionKey := data["projection"].(map[string]any)["session_key"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sessionKey, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err := manager.Get(sessionKey)
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
}

func TestGetProjection_UnknownSessionReturnsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	token := "token-missing"

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing/projection", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api provides the HTTP interface for the reading-session engine.

It exposes endpoints for opening a reading session, reading its projection
and debug snapshot, driving cursor/retry/switch commands, and closing it.
A session token minted on open scopes every subsequent call to that one
session (SPEC_FULL.md §B.1) — there are no user accounts to authenticate.

The handler translates between the web/JSON layer and the internal
[engine.Manager]/[engine.Session].
*/
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dk5761/reader/internal/platform/apperr"
	"github.com/dk5761/reader/internal/platform/middleware"
	"github.com/dk5761/reader/internal/platform/requestutil"
	"github.com/dk5761/reader/internal/platform/respond"
	"github.com/dk5761/reader/internal/platform/validate"
	"github.com/dk5761/reader/internal/reader/engine"
	"github.com/dk5761/reader/pkg/query"
)

// # Handler Implementation

// TokenIssuer mints the bearer token returned by [SessionHandler.openSession].
// Implemented by [sec.TokenService].
type TokenIssuer interface {
	GenerateSessionToken(sessionKey, sourceID, workID, entryChapterID string, timeToLive time.Duration) (string, error)
}

// SessionHandler implements the HTTP layer for the reading-session engine.
// It translates web requests into [engine.Manager] calls.
type SessionHandler struct {
	manager  *engine.Manager
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewSessionHandler constructs a new [SessionHandler] with its engine and
// token-issuing dependencies.
func NewSessionHandler(manager *engine.Manager, tokens TokenIssuer, tokenTTL time.Duration, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		manager:  manager,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger.With(slog.String("component", "session_handler")),
	}
}

// Routes returns a [chi.Router] configured with the session domain's
// endpoints. Every route but the opening POST is scoped to the session named
// by the {sessionID} path parameter, enforced by [middleware.RequireSession].
func (handler *SessionHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.openSession)

	router.Group(func(scoped chi.Router) {
		scoped.Use(middleware.RequireAuth, middleware.RequireSession("sessionID"))

		scoped.Get("/{sessionID}/projection", handler.getProjection)
		scoped.Get("/{sessionID}/snapshot", handler.getSnapshot)
		scoped.Post("/{sessionID}/cursor", handler.setCursor)
		scoped.Post("/{sessionID}/retry/{pageID}", handler.retryPage)
		scoped.Post("/{sessionID}/switch/{chapterID}", handler.switchChapter)
		scoped.Delete("/{sessionID}", handler.closeSession)
	})

	return router
}

// # Session Endpoints

type openSessionRequest struct {
	SourceID       string `json:"source_id"`
	WorkID         string `json:"work_id"`
	EntryChapterID string `json:"entry_chapter_id"`
	EntryPageIndex int    `json:"entry_page_index"`
}

type openSessionResponse struct {
	Token      string        `json:"token"`
	Projection projectionDTO `json:"projection"`
}

/*
POST /v1/sessions.

Description: Opens a new reading session against one work's catalog entry
point and mints a bearer token scoped to it.

Request:
  - source_id: string (required)
  - work_id: string (required)
  - entry_chapter_id: string (required)
  - entry_page_index: int (optional, defaults to 0)

Response:
  - 201: {token, projection}: Session opened
  - 400: ValidationError: Missing required field
*/
func (handler *SessionHandler) openSession(writer http.ResponseWriter, request *http.Request) {
	var body openSessionRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var validator validate.Validator
	validator.Required("source_id", body.SourceID)
	validator.Required("work_id", body.WorkID)
	validator.Required("entry_chapter_id", body.EntryChapterID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.manager.Open(request.Context(), body.SourceID, body.WorkID, body.EntryChapterID, body.EntryPageIndex)
	if err != nil {
		respond.Error(writer, request, apperr.ValidationError(err.Error()))
		return
	}

	snap := session.Snapshot()
	token, err := handler.tokens.GenerateSessionToken(snap.SessionKey, body.SourceID, body.WorkID, body.EntryChapterID, handler.tokenTTL)
	if err != nil {
		_ = handler.manager.Close(snap.SessionKey)
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	respond.Created(writer, openSessionResponse{Token: token, Projection: toProjectionDTO(snap)})
}

/*
GET /v1/sessions/{sessionID}/projection.

Description: Returns the current flat page projection and cursor.

Response:
  - 200: projectionDTO: Success
  - 404: NotFound: Unknown session
*/
func (handler *SessionHandler) getProjection(writer http.ResponseWriter, request *http.Request) {
	session, err := handler.sessionFromRoute(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, toProjectionDTO(session.Snapshot()))
}

/*
GET /v1/sessions/{sessionID}/snapshot.

Description: Returns the scheduler's per-page runtime state and debug
statistics, for renderer diagnostics.

Request:
  - lane: comma-separated string (optional) — restricts the returned pages
    to one or more lane names (e.g. "foreground_window,in_chapter_prefetch")

Response:
  - 200: snapshotDTO: Success
  - 404: NotFound: Unknown session
*/
func (handler *SessionHandler) getSnapshot(writer http.ResponseWriter, request *http.Request) {
	session, err := handler.sessionFromRoute(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	lanes := query.StringSlice(request.URL.Query().Get("lane"))
	respond.OK(writer, toSnapshotDTO(session.Snapshot(), lanes))
}

type setCursorRequest struct {
	FlatIndex int `json:"flat_index"`
}

/*
POST /v1/sessions/{sessionID}/cursor.

Description: Moves the reading cursor to a flat projection index, per
the set_flat_index command.

Request:
  - flat_index: int (required)

Response:
  - 200: projectionDTO: Cursor moved
  - 404: NotFound: Unknown session
*/
func (handler *SessionHandler) setCursor(writer http.ResponseWriter, request *http.Request) {
	session, err := handler.sessionFromRoute(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body setCursorRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := session.SetFlatIndex(request.Context(), body.FlatIndex); err != nil {
		respond.Error(writer, request, mapEngineError(err))
		return
	}
	respond.OK(writer, toProjectionDTO(session.Snapshot()))
}

/*
POST /v1/sessions/{sessionID}/retry/{pageID}.

Description: Force-enqueues a page in the highest priority lane, per the
retry_page command.

Response:
  - 204: Page re-enqueued
  - 404: NotFound: Unknown session
*/
func (handler *SessionHandler) retryPage(writer http.ResponseWriter, request *http.Request) {
	session, err := handler.sessionFromRoute(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	pageID := requestutil.ID(request, "pageID")
	if err := session.RetryPage(pageID); err != nil {
		respond.Error(writer, request, mapEngineError(err))
		return
	}
	respond.NoContent(writer)
}

/*
POST /v1/sessions/{sessionID}/switch/{chapterID}.

Description: Moves the cursor to the first page of chapterID, loading it
first if it is the immediate next or previous neighbor of the current
chapter, per the switch_to_chapter command.

Response:
  - 200: projectionDTO: Switched
  - 400: ValidationError: Target chapter is not loaded or an immediate neighbor
  - 404: NotFound: Unknown session
*/
func (handler *SessionHandler) switchChapter(writer http.ResponseWriter, request *http.Request) {
	session, err := handler.sessionFromRoute(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	chapterID := requestutil.ID(request, "chapterID")
	if err := session.SwitchToChapter(request.Context(), chapterID); err != nil {
		respond.Error(writer, request, mapEngineError(err))
		return
	}
	respond.OK(writer, toProjectionDTO(session.Snapshot()))
}

/*
DELETE /v1/sessions/{sessionID}.

Description: Ends the reading session and releases every owned resource.

Response:
  - 204: Session closed
  - 404: NotFound: Unknown session
*/
func (handler *SessionHandler) closeSession(writer http.ResponseWriter, request *http.Request) {
	sessionID := requestutil.ID(request, "sessionID")
	if err := handler.manager.Close(sessionID); err != nil {
		respond.Error(writer, request, mapEngineError(err))
		return
	}
	respond.NoContent(writer)
}

// # Helpers

func (handler *SessionHandler) sessionFromRoute(request *http.Request) (*engine.Session, error) {
	sessionID := requestutil.ID(request, "sessionID")
	session, err := handler.manager.Get(sessionID)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return session, nil
}

// mapEngineError translates the engine package's sentinel errors into the
// matching [apperr.AppError]; anything unrecognized becomes a 500.
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return apperr.NotFound("Session")
	case errors.Is(err, engine.ErrNotOpen):
		return apperr.NotFound("Session")
	case errors.Is(err, engine.ErrChapterNotLoaded):
		return apperr.ValidationError(err.Error())
	default:
		return apperr.Internal(err)
	}
}

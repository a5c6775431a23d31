// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package engine wires the scheduler, cache, reading-window store, chapter
flow resolver, and progress writer into the single reading-session entity
described by spec.md §2's data flow: the store is the source of truth for
what pages exist, the scheduler is driven by the store's cursor and chapter
order and reports page readiness back, and the engine is the "projection
integration layer" that merges the two into the snapshot the UI renderer
consumes (spec.md §5).

Page and chapter bookkeeping lives in [store.Store], [scheduler.Scheduler],
and [flow.Resolver], each of which owns its own lock; this package sequences
calls into them under the session's own mutex, which also guards the
opened state and the listener registry.
*/
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dk5761/reader/internal/reader/flow"
	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/progress"
	"github.com/dk5761/reader/internal/reader/scheduler"
	"github.com/dk5761/reader/internal/reader/store"
	"github.com/dk5761/reader/pkg/uuidv7"
)

// CacheClient is the scheduler's cache dependency, re-exported here so
// callers wiring a [Session] only need to import this package.
type CacheClient = scheduler.CacheClient

// Session is a single reading session: the subject of spec.md §3.3's
// lifecycle. It owns one store, one scheduler, and one flow resolver, which
// are recreated on Open and released on Reset, and one progress writer,
// which is created once by [New] and flushed on every teardown.
type Session struct {
	mu sync.Mutex

	cfg     model.Config
	catalog Catalog
	cache   CacheClient
	logger  *slog.Logger

	store     *store.Store
	scheduler *scheduler.Scheduler
	resolver  *flow.Resolver
	writer    *progress.Writer

	sourceID       string
	workID         string
	entryChapterID string
	opened         bool

	unsubscribeScheduler func()

	listeners      map[int]func()
	nextListenerID int
}

// New constructs an unopened [Session]. collaborator/invalidator may be nil
// (with a nil collaborator the progress writer skips its writes; see
// [progress.New]).
func New(cfg model.Config, catalog Catalog, cacheClient CacheClient, collaborator progress.Collaborator, invalidator progress.QueryCacheInvalidator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Normalize()
	return &Session{
		cfg:       cfg,
		catalog:   catalog,
		cache:     cacheClient,
		logger:    logger.With(slog.String("component", "reading_session")),
		writer:    progress.New(collaborator, invalidator, cfg.ProgressDebounceMS, cfg.TimelineDupGuardMS, logger),
		listeners: make(map[int]func()),
	}
}

// Open begins a session for (sourceID, workID, entryChapterID), per spec.md
// §3.3. If a session is already open for a different (source, work, entry
// chapter) triple, it is torn down first. Opening the same triple again is
// treated as a fresh start (any in-flight scheduler work is discarded).
func (s *Session) Open(ctx context.Context, sourceID, workID, entryChapterID string, entryPageIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		s.teardownLocked()
	}

	chapters, err := s.catalog.FetchChapters(ctx, workID)
	if err != nil {
		return fmt.Errorf("engine: fetch chapters for work %q: %w", workID, err)
	}
	entryChapter, ok := findChapter(chapters, entryChapterID)
	if !ok {
		return fmt.Errorf("engine: entry chapter %q not found in catalog for work %q", entryChapterID, workID)
	}
	pages, err := s.catalog.FetchPages(ctx, entryChapterID)
	if err != nil {
		return fmt.Errorf("engine: fetch pages for chapter %q: %w", entryChapterID, err)
	}
	meta, err := s.catalog.FetchWorkMeta(ctx, sourceID, workID)
	if err != nil {
		return fmt.Errorf("engine: fetch work meta for %q/%q: %w", sourceID, workID, err)
	}

	sessionKey := uuidv7.New()

	s.store = store.New(s.logger)
	s.scheduler = scheduler.New(s.cfg, s.cache, s.logger)
	s.resolver = flow.New(s.catalog, s.store, s.logger)

	s.sourceID = sourceID
	s.workID = workID
	s.entryChapterID = entryChapterID
	s.opened = true

	s.unsubscribeScheduler = s.scheduler.Subscribe(s.onSchedulerChange)

	state := s.store.InitializeSession(sessionKey, meta, chapters, entryChapter, pages, entryPageIndex)
	s.resolver.SetChapters(chapters)
	s.syncSchedulerLocked(state)
	s.writer.OnCursorChange(progressEventFromState(sourceID, workID, state))
	s.triggerPrefetchLocked(ctx, state)

	return nil
}

// Reset ends the session, releasing every owned resource, per spec.md §3.3.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if !s.opened {
		return
	}
	s.writer.Flush()
	if s.unsubscribeScheduler != nil {
		s.unsubscribeScheduler()
		s.unsubscribeScheduler = nil
	}
	if s.scheduler != nil {
		s.scheduler.Dispose()
	}
	if s.store != nil {
		s.store.Reset()
	}
	s.opened = false
	s.store = nil
	s.scheduler = nil
	s.resolver = nil
}

func findChapter(chapters []model.ChapterDescriptor, id string) (model.ChapterDescriptor, bool) {
	for _, c := range chapters {
		if c.ID == id {
			return c, true
		}
	}
	return model.ChapterDescriptor{}, false
}

func progressEventFromState(sourceID, workID string, state store.State) progress.Event {
	event := progress.Event{SessionKey: state.SessionKey, SourceID: sourceID, WorkID: workID}
	if state.CurrentChapterID != nil {
		event.ChapterID = *state.CurrentChapterID
	}
	if state.CurrentPageIndex != nil {
		event.PageIndex = *state.CurrentPageIndex
	}
	if idx, ok := indexOfLoadedChapter(state.LoadedChapters, event.ChapterID); ok {
		event.TotalPages = len(state.LoadedChapters[idx].Pages)
	}
	return event
}

func indexOfLoadedChapter(loaded []model.LoadedChapter, chapterID string) (int, bool) {
	for i, chapter := range loaded {
		if chapter.Chapter.ID == chapterID {
			return i, true
		}
	}
	return 0, false
}

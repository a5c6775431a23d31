// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dk5761/reader/internal/reader/model"
)

// CacheClient is the scheduler's view of the image cache (internal/reader/cache.Cache),
// narrowed to the two operations it needs. Tests substitute a fake.
type CacheClient interface {
	Fetch(ctx context.Context, chapterID, url string, headers map[string]string) (*model.CachedArtifact, error)
	EvictChapter(chapterID string)
}

// Scheduler is the page download scheduler of spec.md §4.1.
type Scheduler struct {
	mu sync.Mutex

	cfg    model.Config
	cache  CacheClient
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	tasks        map[string]model.PageDescriptor
	chapterOrder []string
	cursor       model.Cursor
	hasCursor    bool

	states map[string]PageState
	queues [laneCount]laneQueue

	foregroundInFlight int
	backgroundInFlight int

	attempts     map[string]int
	tokens       map[string]int64
	tokenCounter int64

	retryTimers map[string]*time.Timer

	listeners      map[int]func()
	nextListenerID int

	cancelledCount     int64
	deprioritizedCount int64

	cursorMovedAt          time.Time
	foregroundWindowAtMove map[string]bool
	cursorToFirstReadyMs   *int64

	disposed bool
}

// New constructs a [Scheduler]. cfg is normalized via [model.Config.Normalize].
func New(cfg model.Config, cache CacheClient, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:         cfg.Normalize(),
		cache:       cache,
		logger:      logger.With(slog.String("component", "scheduler")),
		ctx:         ctx,
		cancel:      cancel,
		tasks:       make(map[string]model.PageDescriptor),
		states:      make(map[string]PageState),
		attempts:    make(map[string]int),
		tokens:      make(map[string]int64),
		retryTimers: make(map[string]*time.Timer),
		listeners:   make(map[int]func()),
	}
}

// UpdateTasks replaces the known page set (spec.md §4.1.1). Pages no longer
// present are dropped (their state, queue entry and retry timer are removed
// and any in-flight load is invalidated); newly-present pages start Idle.
func (s *Scheduler) UpdateTasks(tasks map[string]model.PageDescriptor) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}

	next := make(map[string]model.PageDescriptor, len(tasks))
	for id, page := range tasks {
		next[id] = page
	}

	for id := range s.states {
		if _, stillKnown := next[id]; !stillKnown {
			s.removePageLocked(id, "removed from task set")
		}
	}
	for id := range next {
		if _, known := s.states[id]; !known {
			s.states[id] = idleState()
		}
	}
	s.tasks = next

	s.recomputeLocked()
	s.dispatchPumpLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

// SetChapterOrder replaces the authoritative ordered chapter id list.
func (s *Scheduler) SetChapterOrder(order []string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.chapterOrder = append([]string(nil), order...)
	s.recomputeLocked()
	s.dispatchPumpLocked()
	s.evictDistantChaptersLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

// SetCursor moves the reading cursor, clamping page_index to the last known
// page index of the chapter.
func (s *Scheduler) SetCursor(chapterID string, pageIndex int) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.setCursorLocked(chapterID, pageIndex)
	s.recomputeLocked()
	s.foregroundWindowAtMove = s.currentForegroundWindowSetLocked()
	s.dispatchPumpLocked()
	s.evictDistantChaptersLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

// OnChapterSwitch is equivalent to SetCursor(target, 0), additionally
// proactively demoting/cancelling pages outside the target chapter's
// recomputed desired set (spec.md §4.1.1).
func (s *Scheduler) OnChapterSwitch(targetChapterID string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.setCursorLocked(targetChapterID, 0)
	s.recomputeLocked()
	s.foregroundWindowAtMove = s.currentForegroundWindowSetLocked()
	s.dispatchPumpLocked()
	s.evictDistantChaptersLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

func (s *Scheduler) setCursorLocked(chapterID string, pageIndex int) {
	clamped := pageIndex
	if clamped < 0 {
		clamped = 0
	}
	if maxIndex, ok := s.lastPageIndexLocked(chapterID); ok && clamped > maxIndex {
		clamped = maxIndex
	}
	s.cursor = model.Cursor{ChapterID: chapterID, PageIndex: clamped}
	s.hasCursor = true
	s.cursorMovedAt = time.Now()
	s.foregroundWindowAtMove = nil
	s.cursorToFirstReadyMs = nil
}

func (s *Scheduler) lastPageIndexLocked(chapterID string) (int, bool) {
	max := -1
	found := false
	for _, page := range s.tasks {
		if page.ChapterID != chapterID {
			continue
		}
		found = true
		if page.PageIndex > max {
			max = page.PageIndex
		}
	}
	return max, found
}

// RetryPage force-enqueues pageID in the highest priority lane regardless of
// prior state.
func (s *Scheduler) RetryPage(pageID string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if _, known := s.tasks[pageID]; !known {
		s.mu.Unlock()
		return
	}
	s.stopRetryTimerLocked(pageID)
	s.removeFromAllQueuesLocked(pageID)
	s.bumpTokenLocked(pageID)
	s.attempts[pageID] = 0
	s.states[pageID] = queuedState(LaneManualRetry)
	s.queues[LaneManualRetry].push(pageID)
	s.dispatchPumpLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

// Subscribe registers listener to be invoked synchronously after any state
// change that might affect the public snapshot. The returned func
// unsubscribes. Listeners must not reenter scheduler operations.
func (s *Scheduler) Subscribe(listener func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns an immutable view of per-page state and debug statistics.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildSnapshotLocked()
}

// Dispose cancels all work, clears all timers and listeners, and releases
// internal state. The scheduler is unusable afterward.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.cancel()
	for _, timer := range s.retryTimers {
		timer.Stop()
	}
	s.retryTimers = nil
	s.listeners = nil
	s.states = nil
	s.tasks = nil
	s.attempts = nil
	s.tokens = nil
}

func (s *Scheduler) notify(_ Snapshot) {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mu.Unlock()
	for _, listener := range listeners {
		listener()
	}
}

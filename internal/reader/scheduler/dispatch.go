// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/dk5761/reader/internal/reader/model"
)

// recomputeLocked implements spec.md §4.1.4: recompute the desired set and
// reconcile it with current per-page state.
func (s *Scheduler) recomputeLocked() {
	if !s.hasCursor {
		return
	}
	desired := computeDesiredSet(s.tasks, s.chapterOrder, s.cursor, s.cfg)

	for pageID, lane := range desired {
		state, known := s.states[pageID]
		if !known || !state.reviveEligible() {
			continue
		}
		if state.Kind == PageQueued {
			if lane.betterThan(state.Lane) {
				s.queues[state.Lane].remove(pageID)
				s.queues[lane].push(pageID)
				s.states[pageID] = queuedState(lane)
				s.deprioritizedCount++
			}
			continue
		}
		if state.Kind == PageError && state.NextRetryAt != nil && state.NextRetryAt.After(time.Now()) {
			// A backoff timer is already armed for this page; only its firing
			// (onRetryTimerFired) may revive it. Reconciliation must not
			// short-circuit the backoff just because the page is still
			// (or again) in the desired set.
			continue
		}
		s.stopRetryTimerLocked(pageID)
		s.removeFromAllQueuesLocked(pageID)
		s.queues[lane].push(pageID)
		s.states[pageID] = queuedState(lane)
	}

	for pageID, state := range s.states {
		if _, inDesired := desired[pageID]; inDesired {
			continue
		}
		switch state.Kind {
		case PageQueued:
			s.removeFromAllQueuesLocked(pageID)
			s.states[pageID] = cancelledState("deprioritized out of desired set")
			s.cancelledCount++
		case PageLoading:
			if !state.Lane.IsForeground() {
				s.bumpTokenLocked(pageID)
				s.states[pageID] = cancelledState("deprioritized out of desired set")
				s.cancelledCount++
			}
		}
	}
}

func (s *Scheduler) currentForegroundWindowSetLocked() map[string]bool {
	if !s.hasCursor {
		return nil
	}
	desired := computeDesiredSet(s.tasks, s.chapterOrder, s.cursor, s.cfg)
	window := make(map[string]bool, len(desired))
	for pageID, lane := range desired {
		if lane == LaneVisibleOrCursor || lane == LaneForegroundWindow {
			window[pageID] = true
		}
	}
	return window
}

// dispatchPumpLocked implements spec.md §4.1.5: foreground lanes admit
// first and exclusively; background lanes admit only once no foreground
// lane has anything queued.
func (s *Scheduler) dispatchPumpLocked() {
	for s.foregroundInFlight < s.cfg.ForegroundConcurrency {
		pageID, lane, ok := s.popForegroundLocked()
		if !ok {
			break
		}
		s.dispatchLocked(pageID, lane)
	}

	if s.anyForegroundQueuedLocked() {
		return
	}

	for s.backgroundInFlight < s.cfg.BackgroundConcurrency {
		pageID, lane, ok := s.popBackgroundLocked()
		if !ok {
			break
		}
		s.dispatchLocked(pageID, lane)
	}
}

func (s *Scheduler) anyForegroundQueuedLocked() bool {
	for lane := LaneManualRetry; lane <= LaneForegroundWindow; lane++ {
		if s.queues[lane].len() > 0 {
			return true
		}
	}
	return false
}

func (s *Scheduler) popForegroundLocked() (string, Lane, bool) {
	for lane := LaneManualRetry; lane <= LaneForegroundWindow; lane++ {
		if pageID, ok := s.queues[lane].popFront(); ok {
			return pageID, lane, true
		}
	}
	return "", 0, false
}

func (s *Scheduler) popBackgroundLocked() (string, Lane, bool) {
	for lane := LaneInChapterPrefetch; lane <= LaneNextChapterPrefetch; lane++ {
		if pageID, ok := s.queues[lane].popFront(); ok {
			return pageID, lane, true
		}
	}
	return "", 0, false
}

// dispatchLocked mints a token, marks the page Loading, and launches the
// cache fetch in a goroutine. Resolution arrives via runFetch.
func (s *Scheduler) dispatchLocked(pageID string, lane Lane) {
	page, ok := s.tasks[pageID]
	if !ok {
		return
	}
	s.attempts[pageID]++
	attempt := s.attempts[pageID]
	token := s.mintTokenLocked(pageID)
	s.states[pageID] = loadingState(lane, attempt, token)

	if lane.IsForeground() {
		s.foregroundInFlight++
	} else {
		s.backgroundInFlight++
	}

	ctx := s.ctx
	go s.runFetch(ctx, pageID, page, lane, attempt, token)
}

func (s *Scheduler) runFetch(ctx context.Context, pageID string, page model.PageDescriptor, lane Lane, attempt int, token int64) {
	artifact, fetchErr := s.cache.Fetch(ctx, page.ChapterID, page.ImageURL, page.Headers)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}

	if lane.IsForeground() {
		s.foregroundInFlight--
	} else {
		s.backgroundInFlight--
	}

	if s.tokens[pageID] == token {
		if fetchErr != nil {
			s.handleErrorLocked(pageID, lane, attempt, asDownloadError(fetchErr))
		} else {
			s.states[pageID] = readyState(artifact)
			s.recordFirstReadyLocked(pageID)
		}
	}

	s.recomputeLocked()
	s.dispatchPumpLocked()
	s.evictDistantChaptersLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

// handleErrorLocked implements the retry policy of spec.md §4.1.6.
func (s *Scheduler) handleErrorLocked(pageID string, lane Lane, attempt int, downloadErr *model.DownloadError) {
	if !downloadErr.Retriable {
		s.states[pageID] = errorState(lane, attempt, downloadErr, true, nil)
		return
	}
	if attempt <= s.cfg.MaxAutoRetries {
		backoff := s.backoffFor(attempt)
		nextRetryAt := time.Now().Add(backoff)
		s.states[pageID] = errorState(lane, attempt, downloadErr, false, &nextRetryAt)
		s.scheduleRetryTimerLocked(pageID, backoff)
		return
	}
	// Retriable but the auto-retry budget is exhausted (MaxAutoRetries == 0
	// disables automatic retry entirely, per spec.md §8): still non-terminal,
	// so the page can revive via desired-set churn or an explicit retry_page
	// call, it just gets no backoff timer.
	s.states[pageID] = errorState(lane, attempt, downloadErr, false, nil)
}

func (s *Scheduler) backoffFor(attempt int) time.Duration {
	schedule := s.cfg.AutoRetryBackoffMS
	if len(schedule) == 0 {
		return 750 * time.Millisecond
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return time.Duration(schedule[idx]) * time.Millisecond
}

func (s *Scheduler) scheduleRetryTimerLocked(pageID string, backoff time.Duration) {
	s.stopRetryTimerLocked(pageID)
	timer := time.AfterFunc(backoff, func() { s.onRetryTimerFired(pageID) })
	s.retryTimers[pageID] = timer
}

// onRetryTimerFired re-enqueues an auto-retry-pending page into
// ForegroundWindow regardless of its original lane, per spec.md §4.1.6.
func (s *Scheduler) onRetryTimerFired(pageID string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	delete(s.retryTimers, pageID)

	if _, known := s.tasks[pageID]; !known {
		s.mu.Unlock()
		return
	}
	state := s.states[pageID]
	if state.Kind != PageError || state.Terminal {
		s.mu.Unlock()
		return
	}

	s.removeFromAllQueuesLocked(pageID)
	s.states[pageID] = queuedState(LaneForegroundWindow)
	s.queues[LaneForegroundWindow].push(pageID)
	s.dispatchPumpLocked()
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

func (s *Scheduler) recordFirstReadyLocked(pageID string) {
	if s.cursorToFirstReadyMs != nil {
		return
	}
	if !s.foregroundWindowAtMove[pageID] {
		return
	}
	elapsed := time.Since(s.cursorMovedAt).Milliseconds()
	s.cursorToFirstReadyMs = &elapsed
}

// evictDistantChaptersLocked implements spec.md §4.1.7.
func (s *Scheduler) evictDistantChaptersLocked() {
	if !s.hasCursor {
		return
	}
	for _, chapterID := range s.chapterOrder {
		if chapterID == s.cursor.ChapterID {
			continue
		}
		if chapterDistance(s.chapterOrder, chapterID, s.cursor.ChapterID) <= 1 {
			continue
		}
		if s.chapterBusyLocked(chapterID) {
			continue
		}
		s.cache.EvictChapter(chapterID)
	}
}

func (s *Scheduler) chapterBusyLocked(chapterID string) bool {
	for pageID, page := range s.tasks {
		if page.ChapterID != chapterID {
			continue
		}
		state := s.states[pageID]
		if state.Kind == PageLoading {
			return true
		}
		if state.Kind == PageQueued && state.Lane == LaneManualRetry {
			return true
		}
	}
	return false
}

func (s *Scheduler) removePageLocked(pageID string, reason string) {
	_ = reason
	s.stopRetryTimerLocked(pageID)
	if state, ok := s.states[pageID]; ok && state.Kind == PageLoading {
		s.bumpTokenLocked(pageID)
	}
	s.removeFromAllQueuesLocked(pageID)
	delete(s.states, pageID)
	delete(s.attempts, pageID)
	delete(s.tokens, pageID)
}

func (s *Scheduler) removeFromAllQueuesLocked(pageID string) {
	for lane := 0; lane < laneCount; lane++ {
		s.queues[lane].remove(pageID)
	}
}

func (s *Scheduler) stopRetryTimerLocked(pageID string) {
	if timer, ok := s.retryTimers[pageID]; ok {
		timer.Stop()
		delete(s.retryTimers, pageID)
	}
}

func (s *Scheduler) mintTokenLocked(pageID string) int64 {
	s.tokenCounter++
	s.tokens[pageID] = s.tokenCounter
	return s.tokenCounter
}

func (s *Scheduler) bumpTokenLocked(pageID string) {
	s.mintTokenLocked(pageID)
}

// asDownloadError normalizes any error returned by the cache into a
// [model.DownloadError]. Non-HTTP errors default to retriable per spec.md §4.1.6.
func asDownloadError(err error) *model.DownloadError {
	var downloadErr *model.DownloadError
	if errors.As(err, &downloadErr) {
		return downloadErr
	}
	return &model.DownloadError{
		Message:   err.Error(),
		Retriable: true,
		Code:      model.DownloadErrorUnknown,
		Cause:     err,
	}
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Writer is the debounced progress writer of spec.md §4.5.
type Writer struct {
	mu sync.Mutex

	collaborator Collaborator
	invalidator  QueryCacheInvalidator
	logger       *slog.Logger

	debounce     time.Duration
	dupGuard     time.Duration
	timer        *time.Timer
	pending      *Event
	lastChapter  string
	haveLastChap bool

	lastSignature string
	lastCommitAt  time.Time
}

// New constructs a [Writer]. collaborator and invalidator may be nil; with a
// nil collaborator no progress, history or timeline writes are made.
func New(collaborator Collaborator, invalidator QueryCacheInvalidator, debounceMS, dupGuardMS int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		collaborator: collaborator,
		invalidator:  invalidator,
		logger:       logger.With(slog.String("component", "progress_writer")),
		debounce:     time.Duration(debounceMS) * time.Millisecond,
		dupGuard:     time.Duration(dupGuardMS) * time.Millisecond,
	}
}

// OnCursorChange resets the debounce timer with event as the pending write,
// and fires an immediate duplicate-guarded timeline event if the active
// chapter changed.
func (w *Writer) OnCursorChange(event Event) {
	w.mu.Lock()
	w.pending = &event
	chapterChanged := w.haveLastChap && w.lastChapter != event.ChapterID
	w.lastChapter = event.ChapterID
	w.haveLastChap = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)

	if chapterChanged {
		w.emitTimelineLocked(event)
	}
	w.mu.Unlock()
}

// Flush cancels the pending timer and, when a write is pending, commits it
// synchronously and emits a final duplicate-guarded timeline event for it
// (the timeline insert itself runs asynchronously), per spec.md §4.5's
// background/dispose behavior. With nothing pending it does nothing.
func (w *Writer) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	event := w.pending
	w.pending = nil
	if event != nil {
		w.emitTimelineLocked(*event)
	}
	w.mu.Unlock()

	if event != nil {
		w.commit(*event)
	}
}

func (w *Writer) flush() {
	w.mu.Lock()
	event := w.pending
	w.pending = nil
	w.mu.Unlock()

	if event == nil {
		return
	}
	w.commit(*event)
}

func (w *Writer) commit(event Event) {
	if w.collaborator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.collaborator.UpsertProgress(ctx, event); err != nil {
		w.logger.Warn("upsert_progress_failed", slog.String("session_key", event.SessionKey), slog.Any("error", err))
	}
	if err := w.collaborator.UpsertHistory(ctx, event); err != nil {
		w.logger.Warn("upsert_history_failed", slog.String("session_key", event.SessionKey), slog.Any("error", err))
	}
	if w.invalidator != nil {
		prefixes := []string{fmt.Sprintf("reading_progress:%s", event.SessionKey)}
		if err := w.invalidator.Invalidate(ctx, prefixes); err != nil {
			w.logger.Warn("invalidate_query_cache_failed", slog.Any("error", err))
		}
	}
}

// emitTimelineLocked suppresses the event if its signature matches the last
// committed one within the dup-guard window (spec.md §4.5).
func (w *Writer) emitTimelineLocked(event Event) {
	signature := fmt.Sprintf("%s|%s|%s|%d|%d", event.SourceID, event.WorkID, event.ChapterID, event.PageIndex, event.TotalPages)
	if signature == w.lastSignature && time.Since(w.lastCommitAt) < w.dupGuard {
		return
	}
	w.lastSignature = signature
	w.lastCommitAt = time.Now()

	if w.collaborator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.collaborator.InsertTimelineEvent(ctx, event); err != nil {
			w.logger.Warn("insert_timeline_event_failed", slog.String("session_key", event.SessionKey), slog.Any("error", err))
		}
	}()
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"context"
	"errors"

	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/store"
)

// ErrNotOpen is returned by any command issued before [Session.Open] or
// after [Session.Reset].
var ErrNotOpen = errors.New("engine: session is not open")

// ErrChapterNotLoaded is returned by [Session.SwitchToChapter] when the
// target chapter is neither already in the window nor the immediate
// next/previous neighbor of the current chapter — jumping further than one
// chapter away is outside the chapter flow resolver's contract (spec.md
// §4.4) and is left to a fresh [Session.Open] call instead.
var ErrChapterNotLoaded = errors.New("engine: target chapter is not loaded or an immediate neighbor")

// SetFlatIndex moves the cursor to the given flat projection index
// (spec.md §6.2's set_flat_index command): it updates the store, re-syncs
// the scheduler, debounces a progress write, and triggers next/previous
// chapter prefetch if the cursor has entered either chapter's lead zone.
func (s *Session) SetFlatIndex(ctx context.Context, index int) error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return ErrNotOpen
	}

	state := s.store.SetFlatIndex(index)
	s.syncSchedulerLocked(state)
	s.writer.OnCursorChange(progressEventFromState(s.sourceID, s.workID, state))
	s.triggerPrefetchLocked(ctx, state)
	s.mu.Unlock()
	s.notify()
	return nil
}

// RetryPage force-enqueues pageID in the highest priority lane (spec.md
// §6.2's retry_page command).
func (s *Session) RetryPage(pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrNotOpen
	}
	s.scheduler.RetryPage(pageID)
	return nil
}

// SwitchToChapter moves the cursor to the first page of chapterID (spec.md
// §6.2's switch_to_chapter command). If chapterID is not yet in the window
// but is the immediate next or previous neighbor of the current chapter, it
// is loaded synchronously first.
func (s *Session) SwitchToChapter(ctx context.Context, chapterID string) error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return ErrNotOpen
	}

	state := s.store.Snapshot()
	if _, loaded := indexOfLoadedChapter(state.LoadedChapters, chapterID); !loaded {
		if err := s.loadNeighborLocked(ctx, state, chapterID); err != nil {
			s.mu.Unlock()
			return err
		}
		state = s.store.Snapshot()
	}

	flatIndex, ok := firstFlatIndexOfChapter(state, chapterID)
	if !ok {
		s.mu.Unlock()
		return ErrChapterNotLoaded
	}

	state = s.store.SetFlatIndex(flatIndex)
	s.scheduler.OnChapterSwitch(chapterID)
	s.syncSchedulerLocked(state)
	s.writer.OnCursorChange(progressEventFromState(s.sourceID, s.workID, state))
	s.triggerPrefetchLocked(ctx, state)
	s.mu.Unlock()
	s.notify()
	return nil
}

// loadNeighborLocked loads chapterID via the resolver iff it is the
// immediate next or previous neighbor of the current cursor chapter.
func (s *Session) loadNeighborLocked(ctx context.Context, state store.State, chapterID string) error {
	if state.CurrentChapterID == nil {
		return ErrChapterNotLoaded
	}
	if next, ok := s.resolver.ResolveNext(*state.CurrentChapterID); ok && next.ID == chapterID {
		return s.resolver.LoadNext(ctx)
	}
	if previous, ok := s.resolver.ResolvePrevious(*state.CurrentChapterID); ok && previous.ID == chapterID {
		return s.resolver.LoadPrevious(ctx)
	}
	return ErrChapterNotLoaded
}

func firstFlatIndexOfChapter(state store.State, chapterID string) (int, bool) {
	for i, item := range state.FlatPages {
		if item.Kind == model.ProjectionItemPage && item.Page.ChapterID == chapterID {
			return i, true
		}
	}
	return 0, false
}

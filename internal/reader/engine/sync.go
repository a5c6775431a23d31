// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"context"
	"log/slog"

	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/store"
)

// syncSchedulerLocked pushes the store's current task set, chapter order,
// and cursor into the scheduler, per spec.md §2's data-flow description:
// "the store forwards cursor updates and the authoritative chapter order to
// the scheduler; the scheduler pulls page coordinates from the store."
func (s *Session) syncSchedulerLocked(state store.State) {
	s.scheduler.UpdateTasks(tasksFromState(state))
	s.scheduler.SetChapterOrder(chapterOrderFromState(state))
	if state.CurrentChapterID != nil && state.CurrentPageIndex != nil {
		s.scheduler.SetCursor(*state.CurrentChapterID, *state.CurrentPageIndex)
	}
}

func tasksFromState(state store.State) map[string]model.PageDescriptor {
	tasks := make(map[string]model.PageDescriptor)
	for _, loaded := range state.LoadedChapters {
		for _, page := range loaded.Pages {
			tasks[page.ID] = page
		}
	}
	return tasks
}

func chapterOrderFromState(state store.State) []string {
	order := make([]string, 0, len(state.Chapters))
	for _, chapter := range state.Chapters {
		order = append(order, chapter.ID)
	}
	return order
}

// triggerPrefetchLocked fires the background chapter loads spec.md §4.1.3's
// NextChapterPrefetch lane anticipates: once the cursor is within
// ChapterPreloadLeadPages of either end of its chapter, the neighbor's page
// list is fetched and spliced into the window so the scheduler's next
// desired-set computation finds it already loaded. Resolver-level dedup
// means a second call while a load is in flight is a harmless no-op.
func (s *Session) triggerPrefetchLocked(ctx context.Context, state store.State) {
	if state.CurrentChapterID == nil || state.CurrentPageIndex == nil {
		return
	}
	idx, ok := indexOfLoadedChapter(state.LoadedChapters, *state.CurrentChapterID)
	if !ok {
		return
	}
	lastIndex := len(state.LoadedChapters[idx].Pages) - 1
	remaining := lastIndex - *state.CurrentPageIndex
	lead := s.cfg.ChapterPreloadLeadPages

	if remaining <= lead {
		go s.runLoad(ctx, s.resolver.LoadNext)
	}
	if *state.CurrentPageIndex <= lead {
		go s.runLoad(ctx, s.resolver.LoadPrevious)
	}
}

// runLoad runs a flow.Resolver load operation and, on success, re-syncs the
// scheduler and prunes the window against the newly appended/prepended
// chapter — the store mutation the resolver performed is otherwise
// invisible to the scheduler until the next engine-level command arrives.
func (s *Session) runLoad(ctx context.Context, load func(context.Context) error) {
	if err := load(ctx); err != nil {
		s.logger.Warn("chapter_prefetch_failed", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return
	}
	state := s.store.PruneWindow(s.cfg.MaxWindow)
	s.syncSchedulerLocked(state)
	s.mu.Unlock()
	s.notify()
}

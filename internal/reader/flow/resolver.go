// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package flow implements the chapter flow resolver of spec.md §4.4:
deterministic previous/next chapter resolution, and the lazy
load_next/load_previous operations that fetch a neighbor's pages and hand
them to the reading-window store.
*/
package flow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/store"
)

// Catalog is the page-fetch collaborator of spec.md §6.1, narrowed to what
// the resolver needs.
type Catalog interface {
	FetchPages(ctx context.Context, chapterID string) ([]model.PageDescriptor, error)
}

// WindowStore is the subset of internal/reader/store.Store the resolver
// drives; *store.Store satisfies it directly.
type WindowStore interface {
	Snapshot() store.State
	AppendChapterAtomic(chapter model.ChapterDescriptor, pages []model.PageDescriptor, targetPageIndex int) store.State
	PrependChapterAtomic(chapter model.ChapterDescriptor, pages []model.PageDescriptor) store.State
	SetNextChapterLoading(loading bool)
	SetNextChapterError(failed bool)
	SetPreviousChapterLoading(loading bool)
	SetPreviousChapterError(failed bool)
}

// Resolver is the chapter flow resolver of spec.md §4.4.
type Resolver struct {
	mu sync.Mutex

	catalog  Catalog
	store    WindowStore
	chapters []model.ChapterDescriptor
	logger   *slog.Logger

	loadingNext     bool
	loadingPrevious bool
}

// New constructs a [Resolver].
func New(catalog Catalog, store WindowStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, store: store, logger: logger.With(slog.String("component", "chapter_flow_resolver"))}
}

// SetChapters installs the static catalog used for neighbor resolution.
func (r *Resolver) SetChapters(chapters []model.ChapterDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chapters = append([]model.ChapterDescriptor(nil), chapters...)
}

// ResolveNext implements spec.md §4.4.1's ordering rule for the next chapter.
func (r *Resolver) ResolveNext(currentID string) (*model.ChapterDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return resolveNeighbor(r.chapters, currentID, true)
}

// ResolvePrevious implements spec.md §4.4.1's ordering rule for the
// previous chapter.
func (r *Resolver) ResolvePrevious(currentID string) (*model.ChapterDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return resolveNeighbor(r.chapters, currentID, false)
}

// resolveNeighbor never falls back from numeric to positional ordering when
// numeric failed to find a neighbor, per spec.md §4.4.1.
func resolveNeighbor(chapters []model.ChapterDescriptor, currentID string, forward bool) (*model.ChapterDescriptor, bool) {
	current, ok := findChapter(chapters, currentID)
	if !ok {
		return nil, false
	}

	if current.Number != nil {
		return nearestByNumber(chapters, *current.Number, forward)
	}
	return nearestByOrdinal(chapters, currentID, current.Ordinal, forward)
}

func findChapter(chapters []model.ChapterDescriptor, id string) (model.ChapterDescriptor, bool) {
	for _, c := range chapters {
		if c.ID == id {
			return c, true
		}
	}
	return model.ChapterDescriptor{}, false
}

func nearestByNumber(chapters []model.ChapterDescriptor, currentNumber float64, forward bool) (*model.ChapterDescriptor, bool) {
	var best *model.ChapterDescriptor
	for i := range chapters {
		candidate := chapters[i]
		if candidate.Number == nil {
			continue
		}
		if forward && *candidate.Number <= currentNumber {
			continue
		}
		if !forward && *candidate.Number >= currentNumber {
			continue
		}
		if best == nil {
			best = &chapters[i]
			continue
		}
		if forward && *candidate.Number < *best.Number {
			best = &chapters[i]
		}
		if !forward && *candidate.Number > *best.Number {
			best = &chapters[i]
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func nearestByOrdinal(chapters []model.ChapterDescriptor, currentID string, currentOrdinal int, forward bool) (*model.ChapterDescriptor, bool) {
	var best *model.ChapterDescriptor
	for i := range chapters {
		candidate := chapters[i]
		if candidate.ID == currentID {
			continue
		}
		if forward && candidate.Ordinal <= currentOrdinal {
			continue
		}
		if !forward && candidate.Ordinal >= currentOrdinal {
			continue
		}
		if best == nil {
			best = &chapters[i]
			continue
		}
		if forward && candidate.Ordinal < best.Ordinal {
			best = &chapters[i]
		}
		if !forward && candidate.Ordinal > best.Ordinal {
			best = &chapters[i]
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// LoadNext resolves and fetches the next chapter's pages and appends it to
// the store, landing at its first page. Concurrent calls are deduplicated.
func (r *Resolver) LoadNext(ctx context.Context) error {
	r.mu.Lock()
	if r.loadingNext {
		r.mu.Unlock()
		return nil
	}
	snapshot := r.store.Snapshot()
	if snapshot.CurrentChapterID == nil {
		r.mu.Unlock()
		return nil
	}
	next, ok := resolveNeighbor(r.chapters, *snapshot.CurrentChapterID, true)
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.loadingNext = true
	r.mu.Unlock()

	r.store.SetNextChapterLoading(true)
	pages, err := r.catalog.FetchPages(ctx, next.ID)

	r.mu.Lock()
	r.loadingNext = false
	r.mu.Unlock()
	r.store.SetNextChapterLoading(false)

	if err != nil {
		r.store.SetNextChapterError(true)
		r.logger.Warn("load_next_failed", slog.String("chapter_id", next.ID), slog.Any("error", err))
		return err
	}
	r.store.SetNextChapterError(false)
	r.store.AppendChapterAtomic(*next, pages, 0)
	return nil
}

// LoadPrevious resolves and fetches the previous chapter's pages and
// prepends it to the store, landing at its last page.
func (r *Resolver) LoadPrevious(ctx context.Context) error {
	r.mu.Lock()
	if r.loadingPrevious {
		r.mu.Unlock()
		return nil
	}
	snapshot := r.store.Snapshot()
	if snapshot.CurrentChapterID == nil {
		r.mu.Unlock()
		return nil
	}
	previous, ok := resolveNeighbor(r.chapters, *snapshot.CurrentChapterID, false)
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.loadingPrevious = true
	r.mu.Unlock()

	r.store.SetPreviousChapterLoading(true)
	pages, err := r.catalog.FetchPages(ctx, previous.ID)

	r.mu.Lock()
	r.loadingPrevious = false
	r.mu.Unlock()
	r.store.SetPreviousChapterLoading(false)

	if err != nil {
		r.store.SetPreviousChapterError(true)
		r.logger.Warn("load_previous_failed", slog.String("chapter_id", previous.ID), slog.Any("error", err))
		return err
	}
	r.store.SetPreviousChapterError(false)
	r.store.PrependChapterAtomic(*previous, pages)
	return nil
}

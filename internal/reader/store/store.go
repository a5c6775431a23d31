// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package store

import (
	"log/slog"
	"sync"

	"github.com/dk5761/reader/internal/reader/model"
)

// State is the immutable view returned by every [Store] operation. All
// three cursor fields are either all nil (no session) or all set, and
// flat_pages[*CurrentFlatIndex] always addresses the FlatPage matching
// (*CurrentChapterID, *CurrentPageIndex) — spec.md §4.3.1's invariant.
type State struct {
	SessionKey     string
	Meta           model.WorkMeta
	Chapters       []model.ChapterDescriptor
	LoadedChapters []model.LoadedChapter
	FlatPages      []model.ProjectionItem

	CurrentFlatIndex *int
	CurrentChapterID *string
	CurrentPageIndex *int

	NextChapterLoading     bool
	NextChapterError       bool
	PreviousChapterLoading bool
	PreviousChapterError   bool
}

// Store is the reading-window store of spec.md §4.3.
type Store struct {
	mu     sync.Mutex
	state  State
	logger *slog.Logger
}

// New constructs an empty [Store].
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger.With(slog.String("component", "reading_window_store"))}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InitializeSession replaces state wholesale with a single loaded chapter,
// per spec.md §4.3.2.
func (s *Store) InitializeSession(sessionKey string, meta model.WorkMeta, catalog []model.ChapterDescriptor, initialChapter model.ChapterDescriptor, initialPages []model.PageDescriptor, initialPageIndex int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := []model.LoadedChapter{{Chapter: initialChapter, Pages: initialPages}}
	flatPages := buildProjection(loaded)

	clamped := clampPageIndex(initialPageIndex, initialPages)

	s.state = State{
		SessionKey:     sessionKey,
		Meta:           meta,
		Chapters:       append([]model.ChapterDescriptor(nil), catalog...),
		LoadedChapters: loaded,
		FlatPages:      flatPages,
	}
	s.setCursorToPage(initialChapter.ID, clamped)
	return s.state
}

// AppendChapter appends to the tail of loaded_chapters, or replaces an
// already-loaded chapter's pages and remaps the cursor, per spec.md §4.3.2.
func (s *Store) AppendChapter(chapter model.ChapterDescriptor, pages []model.PageDescriptor) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexOfLoadedChapter(chapter.ID); ok {
		if samePageSet(s.state.LoadedChapters[idx].Pages, pages) {
			return s.state
		}
		prevChapterID, prevPageIndex := s.cursorPageLocked()
		s.state.LoadedChapters[idx].Pages = pages
		s.rebuildProjectionLocked()
		s.remapCursorAfterReplaceLocked(prevChapterID, prevPageIndex)
		return s.state
	}

	s.state.LoadedChapters = append(s.state.LoadedChapters, model.LoadedChapter{Chapter: chapter, Pages: pages})
	prevChapterID, prevPageIndex := s.cursorPageLocked()
	s.rebuildProjectionLocked()
	if prevChapterID != "" {
		s.setCursorToPage(prevChapterID, prevPageIndex)
	}
	return s.state
}

// AppendChapterAtomic appends chapter and atomically sets the cursor to its
// targetPageIndex, per spec.md §4.3.2.
func (s *Store) AppendChapterAtomic(chapter model.ChapterDescriptor, pages []model.PageDescriptor, targetPageIndex int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexOfLoadedChapter(chapter.ID); ok {
		s.state.LoadedChapters[idx].Pages = pages
	} else {
		s.state.LoadedChapters = append(s.state.LoadedChapters, model.LoadedChapter{Chapter: chapter, Pages: pages})
	}
	s.rebuildProjectionLocked()
	s.setCursorToPage(chapter.ID, clampPageIndex(targetPageIndex, pages))
	return s.state
}

// PrependChapterAtomic inserts chapter at the head of loaded_chapters and
// sets the cursor to its last page, per spec.md §4.3.2.
func (s *Store) PrependChapterAtomic(chapter model.ChapterDescriptor, pages []model.PageDescriptor) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LoadedChapters = append([]model.LoadedChapter{{Chapter: chapter, Pages: pages}}, s.state.LoadedChapters...)
	s.rebuildProjectionLocked()
	s.setCursorToPage(chapter.ID, lastPageIndex(pages))
	return s.state
}

// PruneWindow retains the last maxWindow chapters when the window has grown
// past it and the cursor is positioned at (or orphaned from) the tail, per
// spec.md §4.3.2.
func (s *Store) PruneWindow(maxWindow int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxWindow < 1 {
		maxWindow = 1
	}
	if len(s.state.LoadedChapters) <= maxWindow {
		return s.state
	}

	cursorChapterID := s.cursorChapterIDLocked()
	_, cursorChapterKnown := s.indexOfLoadedChapter(cursorChapterID)
	tailChapterID := s.state.LoadedChapters[len(s.state.LoadedChapters)-1].Chapter.ID
	cursorIsAtTailOrOrphaned := !cursorChapterKnown || cursorChapterID == tailChapterID
	if !cursorIsAtTailOrOrphaned {
		return s.state
	}

	prevFlatIndex := 0
	if s.state.CurrentFlatIndex != nil {
		prevFlatIndex = *s.state.CurrentFlatIndex
	}
	prevChapterID, prevPageIndex := s.cursorPageLocked()

	keepFrom := len(s.state.LoadedChapters) - maxWindow
	s.state.LoadedChapters = append([]model.LoadedChapter(nil), s.state.LoadedChapters[keepFrom:]...)
	s.rebuildProjectionLocked()

	if prevChapterID != "" {
		if idx, ok := findFlatIndex(s.state.FlatPages, prevChapterID, prevPageIndex); ok {
			s.setCursorToFlatIndex(idx)
			return s.state
		}
	}
	s.setCursorToFlatIndex(clampFlatIndex(prevFlatIndex, len(s.state.FlatPages)))
	return s.state
}

// SetFlatIndex clamps index into [0, len(flat_pages)-1] and updates the
// cursor triple from the addressed item, per spec.md §4.3.2.
func (s *Store) SetFlatIndex(index int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCursorToFlatIndex(clampFlatIndex(index, len(s.state.FlatPages)))
	return s.state
}

// Reset returns the store to its empty initial state.
func (s *Store) Reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	return s.state
}

// SetNextChapterLoading/SetNextChapterError/SetPreviousChapterLoading/
// SetPreviousChapterError update the purely-informational fetch flags the
// chapter flow resolver owns (spec.md §4.3.1).
func (s *Store) SetNextChapterLoading(loading bool) {
	s.mu.Lock()
	s.state.NextChapterLoading = loading
	s.mu.Unlock()
}

func (s *Store) SetNextChapterError(failed bool) {
	s.mu.Lock()
	s.state.NextChapterError = failed
	s.mu.Unlock()
}

func (s *Store) SetPreviousChapterLoading(loading bool) {
	s.mu.Lock()
	s.state.PreviousChapterLoading = loading
	s.mu.Unlock()
}

func (s *Store) SetPreviousChapterError(failed bool) {
	s.mu.Lock()
	s.state.PreviousChapterError = failed
	s.mu.Unlock()
}

func (s *Store) indexOfLoadedChapter(chapterID string) (int, bool) {
	for i, loaded := range s.state.LoadedChapters {
		if loaded.Chapter.ID == chapterID {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) cursorChapterIDLocked() string {
	if s.state.CurrentChapterID == nil {
		return ""
	}
	return *s.state.CurrentChapterID
}

func (s *Store) cursorPageLocked() (string, int) {
	if s.state.CurrentChapterID == nil || s.state.CurrentPageIndex == nil {
		return "", 0
	}
	return *s.state.CurrentChapterID, *s.state.CurrentPageIndex
}

func (s *Store) rebuildProjectionLocked() {
	s.state.FlatPages = buildProjection(s.state.LoadedChapters)
}

// remapCursorAfterReplaceLocked implements the append_chapter remap rule:
// land on the same (chapter_id, page_index) pair if it still exists after a
// page-set replacement, else clamp to the closest valid index at or below
// the previous flat index.
func (s *Store) remapCursorAfterReplaceLocked(prevChapterID string, prevPageIndex int) {
	prevFlatIndex := 0
	if s.state.CurrentFlatIndex != nil {
		prevFlatIndex = *s.state.CurrentFlatIndex
	}
	if idx, ok := findFlatIndex(s.state.FlatPages, prevChapterID, prevPageIndex); ok {
		s.setCursorToFlatIndex(idx)
		return
	}
	s.setCursorToFlatIndex(clampFlatIndex(prevFlatIndex, len(s.state.FlatPages)))
}

func (s *Store) setCursorToPage(chapterID string, pageIndex int) {
	if idx, ok := findFlatIndex(s.state.FlatPages, chapterID, pageIndex); ok {
		s.setCursorToFlatIndex(idx)
		return
	}
	s.setCursorToFlatIndex(clampFlatIndex(0, len(s.state.FlatPages)))
}

// setCursorToFlatIndex addresses index directly. If the item at index is a
// TransitionMarker rather than a FlatPage, index is normalized to the
// nearest FlatPage so that flat_pages[current_flat_index] always matches
// (current_chapter_id, current_page_index), per spec.md §8#1.
func (s *Store) setCursorToFlatIndex(index int) {
	if len(s.state.FlatPages) == 0 {
		s.state.CurrentFlatIndex = nil
		s.state.CurrentChapterID = nil
		s.state.CurrentPageIndex = nil
		return
	}
	index = nearestFlatPageIndex(s.state.FlatPages, index)
	item := s.state.FlatPages[index]
	idxCopy := index
	s.state.CurrentFlatIndex = &idxCopy
	chapterID := item.Page.ChapterID
	pageIndex := item.Page.PageIndex
	s.state.CurrentChapterID = &chapterID
	s.state.CurrentPageIndex = &pageIndex
}

// nearestFlatPageIndex normalizes index to the closest FlatPage entry. A
// TransitionMarker sits between two chapters and can never itself be the
// cursor target; scanning forward first lands on the first page of the next
// chapter (the natural continuation of a scroll), falling back to scanning
// backward when index addresses the last item in the projection.
func nearestFlatPageIndex(items []model.ProjectionItem, index int) int {
	for i := index; i < len(items); i++ {
		if items[i].Kind == model.ProjectionItemPage {
			return i
		}
	}
	for i := index; i >= 0; i-- {
		if items[i].Kind == model.ProjectionItemPage {
			return i
		}
	}
	return index
}

func clampPageIndex(index int, pages []model.PageDescriptor) int {
	if index < 0 {
		index = 0
	}
	max := lastPageIndex(pages)
	if index > max {
		index = max
	}
	return index
}

func clampFlatIndex(index, length int) int {
	if length == 0 {
		return 0
	}
	if index < 0 {
		return 0
	}
	if index > length-1 {
		return length - 1
	}
	return index
}

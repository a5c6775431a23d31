// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/dk5761/reader/internal/reader/model"
)

// Static is an in-memory catalog collaborator backed by a fixed set of
// chapters/pages, for tests and the demo binary's offline mode.
type Static struct {
	mu       sync.RWMutex
	metas    map[string]model.WorkMeta // keyed by sourceID + "::" + workID
	chapters map[string][]model.ChapterDescriptor
	pages    map[string][]model.PageDescriptor
}

// NewStatic constructs an empty [Static] fixture; populate it with
// [Static.AddWork] and [Static.AddChapter] before use.
func NewStatic() *Static {
	return &Static{
		metas:    make(map[string]model.WorkMeta),
		chapters: make(map[string][]model.ChapterDescriptor),
		pages:    make(map[string][]model.PageDescriptor),
	}
}

// AddWork registers a work's metadata and ordered chapter list.
func (s *Static) AddWork(sourceID, workID string, meta model.WorkMeta, chapters []model.ChapterDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[workKey(sourceID, workID)] = meta
	s.chapters[workID] = append([]model.ChapterDescriptor(nil), chapters...)
}

// AddChapter registers the page list for a single chapter.
func (s *Static) AddChapter(chapterID string, pages []model.PageDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[chapterID] = append([]model.PageDescriptor(nil), pages...)
}

func workKey(sourceID, workID string) string {
	return sourceID + "::" + workID
}

// FetchChapters implements engine.Catalog.
func (s *Static) FetchChapters(_ context.Context, workID string) ([]model.ChapterDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chapters, ok := s.chapters[workID]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown work %q", workID)
	}
	return append([]model.ChapterDescriptor(nil), chapters...), nil
}

// FetchPages implements engine.Catalog.
func (s *Static) FetchPages(_ context.Context, chapterID string) ([]model.PageDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages, ok := s.pages[chapterID]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown chapter %q", chapterID)
	}
	return append([]model.PageDescriptor(nil), pages...), nil
}

// FetchWorkMeta implements engine.Catalog.
func (s *Static) FetchWorkMeta(_ context.Context, sourceID, workID string) (model.WorkMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metas[workKey(sourceID, workID)]
	if !ok {
		return model.WorkMeta{}, fmt.Errorf("catalog: unknown work %q/%q", sourceID, workID)
	}
	return meta, nil
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/store"
)

func numberedChapter(id string, ordinal int, number float64) model.ChapterDescriptor {
	n := number
	return model.ChapterDescriptor{ID: id, Ordinal: ordinal, Number: &n}
}

func unnumberedChapter(id string, ordinal int) model.ChapterDescriptor {
	return model.ChapterDescriptor{ID: id, Ordinal: ordinal}
}

func TestResolveNeighbor_NumericOrdering(t *testing.T) {
	chapters := []model.ChapterDescriptor{
		numberedChapter("a", 0, 1),
		numberedChapter("b", 1, 2),
		numberedChapter("c", 2, 3),
	}

	next, ok := resolveNeighbor(chapters, "b", true)
	require.True(t, ok)
	assert.Equal(t, "c", next.ID)

	prev, ok := resolveNeighbor(chapters, "b", false)
	require.True(t, ok)
	assert.Equal(t, "a", prev.ID)
}

func TestResolveNeighbor_NumericNeverFallsBackToPositional(t *testing.T) {
	chapters := []model.ChapterDescriptor{
		numberedChapter("a", 0, 1),
		numberedChapter("b", 1, 2), // highest number, at earlier array position than c
		unnumberedChapter("c", 2),
	}
	_, ok := resolveNeighbor(chapters, "b", true)
	assert.False(t, ok, "no numeric neighbor exists; must not fall back positionally")
}

func TestResolveNeighbor_PositionalFallbackWhenNoNumericLabel(t *testing.T) {
	chapters := []model.ChapterDescriptor{
		unnumberedChapter("a", 0),
		unnumberedChapter("b", 1),
		unnumberedChapter("c", 2),
	}
	next, ok := resolveNeighbor(chapters, "b", true)
	require.True(t, ok)
	assert.Equal(t, "c", next.ID)

	prev, ok := resolveNeighbor(chapters, "b", false)
	require.True(t, ok)
	assert.Equal(t, "a", prev.ID)
}

type fakeCatalog struct {
	pages map[string][]model.PageDescriptor
	err   error
	calls int
}

func (f *fakeCatalog) FetchPages(_ context.Context, chapterID string) ([]model.PageDescriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[chapterID], nil
}

func pagesFor(chapterID string, count int) []model.PageDescriptor {
	out := make([]model.PageDescriptor, count)
	for i := 0; i < count; i++ {
		out[i] = model.PageDescriptor{ID: model.PageID(chapterID, i), ChapterID: chapterID, PageIndex: i}
	}
	return out
}

func TestResolver_LoadNextAppendsToStore(t *testing.T) {
	s := store.New(nil)
	s.InitializeSession("sess", model.WorkMeta{}, nil, chapterDesc("ch1", 0), pagesFor("ch1", 2), 0)

	catalog := &fakeCatalog{pages: map[string][]model.PageDescriptor{"ch2": pagesFor("ch2", 3)}}
	resolver := New(catalog, s, nil)
	resolver.SetChapters([]model.ChapterDescriptor{chapterDesc("ch1", 0), chapterDesc("ch2", 1)})

	err := resolver.LoadNext(context.Background())
	require.NoError(t, err)

	state := s.Snapshot()
	require.Len(t, state.LoadedChapters, 2)
	assert.Equal(t, "ch2", state.LoadedChapters[1].Chapter.ID)
	assert.Equal(t, 1, catalog.calls)
}

func TestResolver_LoadNextDeduplicatesConcurrentCalls(t *testing.T) {
	s := store.New(nil)
	s.InitializeSession("sess", model.WorkMeta{}, nil, chapterDesc("ch1", 0), pagesFor("ch1", 2), 0)

	started := make(chan struct{})
	release := make(chan struct{})
	catalog := &blockingCatalog{pages: pagesFor("ch2", 2), started: started, release: release}
	resolver := New(catalog, s, nil)
	resolver.SetChapters([]model.ChapterDescriptor{chapterDesc("ch1", 0), chapterDesc("ch2", 1)})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = resolver.LoadNext(context.Background()) }()
	<-started
	go func() { defer wg.Done(); _ = resolver.LoadNext(context.Background()) }()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), catalog.calls())
}

type blockingCatalog struct {
	mu       sync.Mutex
	n        int32
	pages    []model.PageDescriptor
	started  chan struct{}
	release  chan struct{}
	fireOnce sync.Once
}

func (b *blockingCatalog) FetchPages(context.Context, string) ([]model.PageDescriptor, error) {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	b.fireOnce.Do(func() { close(b.started) })
	<-b.release
	return b.pages, nil
}

func (b *blockingCatalog) calls() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func TestResolver_LoadNextRecordsError(t *testing.T) {
	s := store.New(nil)
	s.InitializeSession("sess", model.WorkMeta{}, nil, chapterDesc("ch1", 0), pagesFor("ch1", 2), 0)

	catalog := &fakeCatalog{err: errors.New("boom")}
	resolver := New(catalog, s, nil)
	resolver.SetChapters([]model.ChapterDescriptor{chapterDesc("ch1", 0), chapterDesc("ch2", 1)})

	err := resolver.LoadNext(context.Background())
	require.Error(t, err)

	state := s.Snapshot()
	assert.True(t, state.NextChapterError)
	assert.Len(t, state.LoadedChapters, 1)
}

func chapterDesc(id string, ordinal int) model.ChapterDescriptor {
	return model.ChapterDescriptor{ID: id, Ordinal: ordinal}
}

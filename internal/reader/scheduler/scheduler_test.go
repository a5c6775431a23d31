// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/reader/model"
)

type fakeCache struct {
	mu       sync.Mutex
	behavior map[string]func() (*model.CachedArtifact, error)
	calls    map[string]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{behavior: make(map[string]func() (*model.CachedArtifact, error)), calls: make(map[string]int)}
}

func (f *fakeCache) Fetch(_ context.Context, _ string, url string, _ map[string]string) (*model.CachedArtifact, error) {
	f.mu.Lock()
	f.calls[url]++
	behavior := f.behavior[url]
	f.mu.Unlock()

	if behavior != nil {
		return behavior()
	}
	return &model.CachedArtifact{OriginalURL: url, LocalPath: "/cache/" + url, Width: 100, Height: 200}, nil
}

func (f *fakeCache) EvictChapter(string) {}

func (f *fakeCache) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func pageTasks(chapterID string, count int) map[string]model.PageDescriptor {
	tasks := make(map[string]model.PageDescriptor, count)
	for i := 0; i < count; i++ {
		id := model.PageID(chapterID, i)
		tasks[id] = model.PageDescriptor{
			ID:        id,
			ChapterID: chapterID,
			PageIndex: i,
			ImageURL:  id + "-url",
		}
	}
	return tasks
}

func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, condition(), "condition not met within %s", timeout)
}

func TestScheduler_CursorPageDispatchesAndBecomesReady(t *testing.T) {
	cache := newFakeCache()
	cfg := model.DefaultConfig()
	sched := New(cfg, cache, nil)
	defer sched.Dispose()

	sched.UpdateTasks(pageTasks("ch1", 10))
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0)

	waitUntil(t, time.Second, func() bool {
		state := sched.Snapshot().Pages[model.PageID("ch1", 0)]
		return state.Kind == PageReady
	})
}

func TestScheduler_ForegroundPreemptsBackground(t *testing.T) {
	cache := newFakeCache()
	cfg := model.DefaultConfig()
	cfg.ForegroundConcurrency = 1
	cfg.BackgroundConcurrency = 1
	cfg.WindowAhead = 3
	cfg.WindowBehind = 0
	cfg.ChapterPreloadLeadPages = 2

	block := make(chan struct{})
	cache.behavior["ch1::0-url"] = func() (*model.CachedArtifact, error) {
		<-block
		return &model.CachedArtifact{LocalPath: "p0"}, nil
	}

	sched := New(cfg, cache, nil)
	defer sched.Dispose()

	sched.UpdateTasks(pageTasks("ch1", 10))
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0) // cursor+foreground window = pages 0,1,2; only 1 foreground slot

	waitUntil(t, time.Second, func() bool {
		return sched.Snapshot().Stats.Lanes[LaneForegroundWindow].QueueSize == 2
	})

	snap := sched.Snapshot()
	assert.Equal(t, 0, snap.Stats.Lanes[LaneInChapterPrefetch].InFlight, "background must not admit while a foreground lane is still queued")

	close(block)

	waitUntil(t, time.Second, func() bool {
		state := sched.Snapshot().Pages[model.PageID("ch1", 0)]
		return state.Kind == PageReady
	})
	waitUntil(t, time.Second, func() bool {
		state := sched.Snapshot().Pages[model.PageID("ch1", 3)]
		return state.Kind == PageReady
	})
}

func TestScheduler_UpdateTasksCancelsRemovedPages(t *testing.T) {
	cache := newFakeCache()
	sched := New(model.DefaultConfig(), cache, nil)
	defer sched.Dispose()

	tasks := pageTasks("ch1", 5)
	sched.UpdateTasks(tasks)
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0)

	delete(tasks, model.PageID("ch1", 4))
	sched.UpdateTasks(tasks)

	_, stillKnown := sched.Snapshot().Pages[model.PageID("ch1", 4)]
	assert.False(t, stillKnown)
}

func TestScheduler_RetryPageForcesManualRetryLane(t *testing.T) {
	cache := newFakeCache()
	attempts := 0
	cache.behavior["ch1::0-url"] = func() (*model.CachedArtifact, error) {
		attempts++
		if attempts == 1 {
			return nil, model.NewHTTPError(404)
		}
		return &model.CachedArtifact{LocalPath: "ok"}, nil
	}

	cfg := model.DefaultConfig()
	sched := New(cfg, cache, nil)
	defer sched.Dispose()

	sched.UpdateTasks(pageTasks("ch1", 3))
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0)

	waitUntil(t, time.Second, func() bool {
		state := sched.Snapshot().Pages[model.PageID("ch1", 0)]
		return state.Kind == PageError && state.Terminal
	})

	sched.RetryPage(model.PageID("ch1", 0))

	waitUntil(t, time.Second, func() bool {
		state := sched.Snapshot().Pages[model.PageID("ch1", 0)]
		return state.Kind == PageReady
	})
}

func TestScheduler_RetriableErrorRespectsBackoffBeforeRevival(t *testing.T) {
	cache := newFakeCache()
	pageID := model.PageID("ch1", 0)
	var calls int32
	cache.behavior[pageID+"-url"] = func() (*model.CachedArtifact, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, model.NewNetworkError(errors.New("boom"))
		}
		return &model.CachedArtifact{LocalPath: "ok"}, nil
	}

	cfg := model.DefaultConfig()
	cfg.AutoRetryBackoffMS = []int{200, 500}
	sched := New(cfg, cache, nil)
	defer sched.Dispose()

	sched.UpdateTasks(pageTasks("ch1", 1))
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0)

	waitUntil(t, time.Second, func() bool {
		return sched.Snapshot().Pages[pageID].Kind == PageError
	})

	state := sched.Snapshot().Pages[pageID]
	require.False(t, state.Terminal)
	require.NotNil(t, state.NextRetryAt)
	assert.True(t, state.NextRetryAt.After(time.Now()))

	// Desired-set reconciliation runs again right away (every dispatch
	// resolution calls recomputeLocked) while the page is still in the
	// desired set; it must not defeat the armed backoff timer.
	time.Sleep(50 * time.Millisecond)
	state = sched.Snapshot().Pages[pageID]
	require.Equal(t, PageError, state.Kind, "backoff was defeated: page revived before its timer fired")

	waitUntil(t, 2*time.Second, func() bool {
		return sched.Snapshot().Pages[pageID].Kind == PageReady
	})
}

func TestScheduler_MaxAutoRetriesZeroKeepsRetriableErrorNonTerminal(t *testing.T) {
	cache := newFakeCache()
	pageID := model.PageID("ch1", 0)
	cache.behavior[pageID+"-url"] = func() (*model.CachedArtifact, error) {
		return nil, model.NewNetworkError(errors.New("boom"))
	}

	cfg := model.DefaultConfig()
	cfg.MaxAutoRetries = 0
	sched := New(cfg, cache, nil)
	defer sched.Dispose()

	sched.UpdateTasks(pageTasks("ch1", 1))
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0)

	waitUntil(t, time.Second, func() bool {
		return sched.Snapshot().Pages[pageID].Kind == PageError
	})

	state := sched.Snapshot().Pages[pageID]
	assert.False(t, state.Terminal, "MaxAutoRetries=0 must not make a retriable error terminal")
	assert.Nil(t, state.NextRetryAt, "MaxAutoRetries=0 must not arm a backoff timer")
}

func TestScheduler_RetryPageDuringLoadDropsStaleResolution(t *testing.T) {
	cache := newFakeCache()
	pageID := model.PageID("ch1", 0)
	url := pageID + "-url"

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int32
	cache.behavior[url] = func() (*model.CachedArtifact, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			started <- struct{}{}
			<-release
			return &model.CachedArtifact{LocalPath: "/cache/stale"}, nil
		}
		return &model.CachedArtifact{LocalPath: "/cache/fresh"}, nil
	}

	cfg := model.DefaultConfig()
	sched := New(cfg, cache, nil)
	defer sched.Dispose()

	sched.UpdateTasks(pageTasks("ch1", 1))
	sched.SetChapterOrder([]string{"ch1"})
	sched.SetCursor("ch1", 0)

	<-started
	waitUntil(t, time.Second, func() bool {
		return sched.Snapshot().Pages[pageID].Kind == PageLoading
	})

	sched.RetryPage(pageID)

	waitUntil(t, time.Second, func() bool {
		state := sched.Snapshot().Pages[pageID]
		return state.Kind == PageReady && state.LocalPath == "/cache/fresh"
	})

	close(release)
	time.Sleep(50 * time.Millisecond)

	state := sched.Snapshot().Pages[pageID]
	assert.Equal(t, "/cache/fresh", state.LocalPath, "stale in-flight resolution overwrote the post-retry state")
}

func TestScheduler_SubscribeNotifiesOnChange(t *testing.T) {
	cache := newFakeCache()
	sched := New(model.DefaultConfig(), cache, nil)
	defer sched.Dispose()

	notified := make(chan struct{}, 16)
	unsubscribe := sched.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	sched.UpdateTasks(pageTasks("ch1", 2))

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}
}

func TestScheduler_DisposeStopsFurtherWork(t *testing.T) {
	cache := newFakeCache()
	sched := New(model.DefaultConfig(), cache, nil)

	sched.UpdateTasks(pageTasks("ch1", 2))
	sched.Dispose()

	sched.SetCursor("ch1", 0)
	snap := sched.Snapshot()
	assert.Empty(t, snap.Pages)
}

func TestComputeDesiredSet_AssignsLanesPerSpec(t *testing.T) {
	cfg := model.Config{WindowAhead: 3, WindowBehind: 1, ChapterPreloadLeadPages: 2}.Normalize()
	tasks := pageTasks("ch1", 10)
	cursor := model.Cursor{ChapterID: "ch1", PageIndex: 3}

	desired := computeDesiredSet(tasks, []string{"ch1"}, cursor, cfg)

	assert.Equal(t, LaneVisibleOrCursor, desired[model.PageID("ch1", 3)])
	assert.Equal(t, LaneForegroundWindow, desired[model.PageID("ch1", 2)])
	assert.Equal(t, LaneForegroundWindow, desired[model.PageID("ch1", 4)])
	assert.Equal(t, LaneInChapterPrefetch, desired[model.PageID("ch1", 6)])
	assert.Equal(t, LaneInChapterPrefetch, desired[model.PageID("ch1", 7)])
	_, assignedFar := desired[model.PageID("ch1", 8)]
	assert.False(t, assignedFar)
}

func TestComputeDesiredSet_NextChapterPrefetchWhenNearChapterEnd(t *testing.T) {
	cfg := model.Config{WindowAhead: 2, WindowBehind: 0, ChapterPreloadLeadPages: 3}.Normalize()
	tasks := pageTasks("ch1", 5)
	for id, page := range pageTasks("ch2", 4) {
		tasks[id] = page
	}
	cursor := model.Cursor{ChapterID: "ch1", PageIndex: 4}

	desired := computeDesiredSet(tasks, []string{"ch1", "ch2"}, cursor, cfg)

	assert.Equal(t, LaneNextChapterPrefetch, desired[model.PageID("ch2", 0)])
	assert.Equal(t, LaneNextChapterPrefetch, desired[model.PageID("ch2", 1)])
}

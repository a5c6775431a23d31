// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/reader/progress"
)

type fakeCollaborator struct {
	mu              sync.Mutex
	progressWrites  []progress.Event
	historyWrites   []progress.Event
	timelineWrites  []progress.Event
	upsertProgErr   error
	insertTimeErr   error
}

func (f *fakeCollaborator) UpsertProgress(_ context.Context, event progress.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressWrites = append(f.progressWrites, event)
	return f.upsertProgErr
}

func (f *fakeCollaborator) UpsertHistory(_ context.Context, event progress.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyWrites = append(f.historyWrites, event)
	return nil
}

func (f *fakeCollaborator) InsertTimelineEvent(_ context.Context, event progress.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelineWrites = append(f.timelineWrites, event)
	return f.insertTimeErr
}

func (f *fakeCollaborator) snapshot() ([]progress.Event, []progress.Event, []progress.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]progress.Event(nil), f.progressWrites...),
		append([]progress.Event(nil), f.historyWrites...),
		append([]progress.Event(nil), f.timelineWrites...)
}

type fakeInvalidator struct {
	mu       sync.Mutex
	prefixes [][]string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, keyPrefixes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, keyPrefixes)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, condition(), "condition not met within %s", timeout)
}

/*
TestWriter_DebouncesRapidCursorChanges verifies that many OnCursorChange calls
within the debounce window collapse into a single committed progress write.
*/
func TestWriter_DebouncesRapidCursorChanges(t *testing.T) {
	collaborator := &fakeCollaborator{}
	writer := progress.New(collaborator, nil, 50, 1000, nil)

	for i := 0; i < 5; i++ {
		writer.OnCursorChange(progress.Event{
			SessionKey: "sess-1", SourceID: "src", WorkID: "work",
			ChapterID: "ch-1", PageIndex: i, TotalPages: 10,
		})
	}

	waitFor(t, time.Second, func() bool {
		writes, _, _ := collaborator.snapshot()
		return len(writes) == 1
	})

	writes, _, _ := collaborator.snapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, 4, writes[0].PageIndex)
}

/*
TestWriter_ChapterChangeEmitsImmediateTimelineEvent verifies that switching
chapters fires a timeline event without waiting for the debounce timer.
*/
func TestWriter_ChapterChangeEmitsImmediateTimelineEvent(t *testing.T) {
	collaborator := &fakeCollaborator{}
	writer := progress.New(collaborator, nil, 5000, 1000, nil)

	writer.OnCursorChange(progress.Event{SessionKey: "sess-1", ChapterID: "ch-1", PageIndex: 0, TotalPages: 10})
	writer.OnCursorChange(progress.Event{SessionKey: "sess-1", ChapterID: "ch-2", PageIndex: 0, TotalPages: 8})

	waitFor(t, time.Second, func() bool {
		_, _, timeline := collaborator.snapshot()
		return len(timeline) == 1
	})

	_, _, timeline := collaborator.snapshot()
	require.Len(t, timeline, 1)
	assert.Equal(t, "ch-2", timeline[0].ChapterID)
}

/*
TestWriter_DuplicateGuardSuppressesRepeatedSignature verifies that two
identical timeline signatures within the dup-guard window emit only once.
*/
func TestWriter_DuplicateGuardSuppressesRepeatedSignature(t *testing.T) {
	collaborator := &fakeCollaborator{}
	writer := progress.New(collaborator, nil, 5000, 5000, nil)

	event := progress.Event{SessionKey: "sess-1", ChapterID: "ch-1", PageIndex: 0, TotalPages: 10}
	writer.OnCursorChange(event)
	writer.OnCursorChange(progress.Event{SessionKey: "sess-1", ChapterID: "ch-2", PageIndex: 0, TotalPages: 10})
	writer.Flush() // pending ch-2 p0, same signature as the chapter-change event

	time.Sleep(100 * time.Millisecond)

	_, _, timeline := collaborator.snapshot()
	// Only the ch-1 -> ch-2 transition fires; Flush's final event repeats
	// that signature within the guard window and is suppressed.
	assert.Len(t, timeline, 1)
}

/*
TestWriter_FlushCommitsPendingWriteSynchronously verifies that Flush, used on
session dispose, commits immediately rather than waiting for the timer.
*/
func TestWriter_FlushCommitsPendingWriteSynchronously(t *testing.T) {
	collaborator := &fakeCollaborator{}
	invalidator := &fakeInvalidator{}
	writer := progress.New(collaborator, invalidator, 5000, 1000, nil)

	writer.OnCursorChange(progress.Event{SessionKey: "sess-1", ChapterID: "ch-1", PageIndex: 3, TotalPages: 10})
	writer.Flush()

	writes, _, _ := collaborator.snapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, 3, writes[0].PageIndex)

	invalidator.mu.Lock()
	defer invalidator.mu.Unlock()
	require.Len(t, invalidator.prefixes, 1)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package progress implements the debounced progress writer of spec.md §4.5:
it translates cursor movements into at-most-one-per-debounce-window writes
to an external progress collaborator, plus duplicate-guarded timeline
events on chapter change or session teardown.
*/
package progress

import "context"

// Event is the cursor snapshot passed to the progress collaborator on
// flush, and to the timeline collaborator on a chapter-change or teardown
// commit.
type Event struct {
	SessionKey string
	SourceID   string
	WorkID     string
	ChapterID  string
	PageIndex  int
	TotalPages int
}

// Collaborator is the progress collaborator of spec.md §6.1. All writes are
// fire-and-forget: errors are logged and swallowed by the writer, never
// surfaced to the cursor or projection.
type Collaborator interface {
	UpsertProgress(ctx context.Context, event Event) error
	UpsertHistory(ctx context.Context, event Event) error
	InsertTimelineEvent(ctx context.Context, event Event) error
}

// QueryCacheInvalidator is the optional query-cache invalidator of spec.md
// §6.1: it receives key prefixes to invalidate after a progress write.
type QueryCacheInvalidator interface {
	Invalidate(ctx context.Context, keyPrefixes []string) error
}

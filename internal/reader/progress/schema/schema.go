// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package schema names the tables and columns the Postgres-backed progress
collaborator reads and writes, adapted from the teacher's
library.readingprogress/library.viewhistory schema structs onto the
reading-session domain.
*/
package schema

// ReadingProgressTable represents the 'reading.progress' table: one row per
// (session_key), holding the latest cursor the debounced writer committed.
type ReadingProgressTable struct {
	Table      string
	SessionKey string
	SourceID   string
	WorkID     string
	ChapterID  string
	PageIndex  string
	TotalPages string
	UpdatedAt  string
}

// ReadingProgress is the schema definition for reading.progress.
var ReadingProgress = ReadingProgressTable{
	Table:      "reading.progress",
	SessionKey: "session_key",
	SourceID:   "source_id",
	WorkID:     "work_id",
	ChapterID:  "chapter_id",
	PageIndex:  "page_index",
	TotalPages: "total_pages",
	UpdatedAt:  "updated_at",
}

// TimelineEventTable represents the 'reading.timeline_event' table: an
// append-only log of chapter-change and session-boundary events.
type TimelineEventTable struct {
	Table      string
	ID         string
	SessionKey string
	SourceID   string
	WorkID     string
	ChapterID  string
	PageIndex  string
	TotalPages string
	CreatedAt  string
}

// TimelineEvent is the schema definition for reading.timeline_event.
var TimelineEvent = TimelineEventTable{
	Table:      "reading.timeline_event",
	ID:         "id",
	SessionKey: "session_key",
	SourceID:   "source_id",
	WorkID:     "work_id",
	ChapterID:  "chapter_id",
	PageIndex:  "page_index",
	TotalPages: "total_pages",
	CreatedAt:  "created_at",
}

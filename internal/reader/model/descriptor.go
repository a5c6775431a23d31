// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package model holds the value types shared across the reading-session engine:
chapter/page descriptors, the flat projection the UI renders, the cached
artifact record, and the download error taxonomy.

None of these types carry mutable runtime state — [ChapterDescriptor] and
[PageDescriptor] are immutable once fetched from the catalog, and the
projection types are rebuilt whole-cloth on every store mutation. Mutable
per-page progress lives in the scheduler package, which is the sole owner of
that state (see the scheduler package doc).
*/
package model

import "fmt"

// ChapterDescriptor identifies a single chapter within a work.
//
// Instances are immutable for the lifetime of a session. Ordinal is the
// chapter's position in the catalog's declared order, used by the flow
// resolver's positional fallback when Number is unset.
type ChapterDescriptor struct {
	ID      string
	Ordinal int
	Number  *float64 // nil if the source has no numeric label (e.g. an extra/special).
	Title   *string
	URL     string
}

// DisplayTitle returns Title if set, falling back to a numbered placeholder.
func (c ChapterDescriptor) DisplayTitle() string {
	if c.Title != nil && *c.Title != "" {
		return *c.Title
	}
	if c.Number != nil {
		return fmt.Sprintf("Chapter %g", *c.Number)
	}
	return c.ID
}

// PageDescriptor identifies a single image page within a chapter.
//
// ID is always ChapterID + "::" + PageIndex, computed by [PageID].
type PageDescriptor struct {
	ID        string
	ChapterID string
	PageIndex int
	ImageURL  string
	Headers   map[string]string // optional request headers (CDN auth, referer, …).
	Width     *int               // optional hint; the cache fills the authoritative value.
	Height    *int
}

// PageID formats the canonical page_id for a (chapterID, pageIndex) pair.
func PageID(chapterID string, pageIndex int) string {
	return fmt.Sprintf("%s::%d", chapterID, pageIndex)
}

// LoadedChapter pairs a chapter with its ordered page list. It is the unit
// the reading-window store appends, prepends, and prunes.
type LoadedChapter struct {
	Chapter ChapterDescriptor
	Pages   []PageDescriptor
}

// Cursor names the page currently centered in the reader viewport.
type Cursor struct {
	ChapterID string
	PageIndex int
}

// CachedArtifact is the result of a successful [cache.Cache.Fetch]: content
// on disk for exactly one (chapter_id, url) pair, with decoded dimensions.
type CachedArtifact struct {
	OriginalURL string
	LocalPath   string
	Width       int
	Height      int
}

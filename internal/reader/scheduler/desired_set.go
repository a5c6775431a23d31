// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

import (
	"sort"

	"github.com/dk5761/reader/internal/reader/model"
)

// pagesByChapter groups the known pages of tasks by chapter, sorted by
// PageIndex ascending.
func pagesByChapter(tasks map[string]model.PageDescriptor) map[string][]model.PageDescriptor {
	grouped := make(map[string][]model.PageDescriptor)
	for _, page := range tasks {
		grouped[page.ChapterID] = append(grouped[page.ChapterID], page)
	}
	for chapterID := range grouped {
		pages := grouped[chapterID]
		sort.Slice(pages, func(i, j int) bool { return pages[i].PageIndex < pages[j].PageIndex })
		grouped[chapterID] = pages
	}
	return grouped
}

// computeDesiredSet implements spec.md §4.1.4: the page_id → lane mapping
// the scheduler wants in effect for the given cursor, chapter order, task
// set, and configuration.
func computeDesiredSet(tasks map[string]model.PageDescriptor, chapterOrder []string, cursor model.Cursor, cfg model.Config) map[string]Lane {
	desired := make(map[string]Lane)
	grouped := pagesByChapter(tasks)

	cursorPages := grouped[cursor.ChapterID]
	if len(cursorPages) == 0 {
		return desired
	}

	cursorPageID := model.PageID(cursor.ChapterID, cursor.PageIndex)
	if _, ok := tasks[cursorPageID]; ok {
		desired[cursorPageID] = LaneVisibleOrCursor
	}

	foregroundLow := cursor.PageIndex - cfg.WindowBehind
	foregroundHigh := cursor.PageIndex + cfg.WindowAhead - 1
	prefetchLow := cursor.PageIndex + cfg.WindowAhead
	prefetchHigh := cursor.PageIndex + cfg.WindowAhead + cfg.ChapterPreloadLeadPages - 1

	remaining := 0
	for _, page := range cursorPages {
		if page.PageIndex > cursor.PageIndex {
			remaining++
		}
		switch {
		case page.PageIndex == cursor.PageIndex:
			continue
		case page.PageIndex >= foregroundLow && page.PageIndex <= foregroundHigh:
			desired[page.ID] = LaneForegroundWindow
		case page.PageIndex >= prefetchLow && page.PageIndex <= prefetchHigh:
			desired[page.ID] = LaneInChapterPrefetch
		}
	}

	if remaining < cfg.ChapterPreloadLeadPages {
		if nextChapterID, ok := nextChapterInOrder(chapterOrder, cursor.ChapterID); ok {
			nextPages := grouped[nextChapterID]
			limit := cfg.WindowAhead
			if limit > len(nextPages) {
				limit = len(nextPages)
			}
			for _, page := range nextPages[:limit] {
				desired[page.ID] = LaneNextChapterPrefetch
			}
		}
	}

	return desired
}

func nextChapterInOrder(order []string, chapterID string) (string, bool) {
	for i, id := range order {
		if id == chapterID && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// chapterDistance returns the absolute position distance between two
// chapter ids in order, or -1 if either is absent from order.
func chapterDistance(order []string, a, b string) int {
	posA, okA := indexOf(order, a)
	posB, okB := indexOf(order, b)
	if !okA || !okB {
		return -1
	}
	diff := posA - posB
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func indexOf(order []string, id string) (int, bool) {
	for i, item := range order {
		if item == id {
			return i, true
		}
	}
	return 0, false
}

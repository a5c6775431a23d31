// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package store implements the reading-window store of spec.md §4.3: the
ordered list of loaded chapters, the three-part cursor, and the flat
projection derived from them. Every exported operation is a single atomic
state commit — the projection and the cursor are never observable out of
sync with one another.
*/
package store

import "github.com/dk5761/reader/internal/reader/model"

// buildProjection recomputes the flat projection from loadedChapters:
// FlatPages interleaved with TransitionMarkers between every consecutive
// pair of chapters, per spec.md §4.3.3. Markers never appear at either end.
func buildProjection(loadedChapters []model.LoadedChapter) []model.ProjectionItem {
	items := make([]model.ProjectionItem, 0)
	for ordinal, loaded := range loadedChapters {
		for _, page := range loaded.Pages {
			flat := model.FlatPage{
				PageID:              page.ID,
				ChapterID:           loaded.Chapter.ID,
				ChapterOrdinal:      ordinal,
				PageIndex:           page.PageIndex,
				TotalPagesInChapter: len(loaded.Pages),
				ProjectionKey:       model.ProjectionKey(loaded.Chapter.ID, page.PageIndex, page.ImageURL),
				ImageURL:            page.ImageURL,
				Headers:             page.Headers,
			}
			items = append(items, model.ProjectionItem{Kind: model.ProjectionItemPage, Page: &flat})
		}

		if ordinal+1 < len(loadedChapters) {
			next := loadedChapters[ordinal+1]
			marker := model.TransitionMarker{
				FromChapterID:    loaded.Chapter.ID,
				FromChapterTitle: loaded.Chapter.DisplayTitle(),
				ToChapterID:      next.Chapter.ID,
				ToChapterTitle:   next.Chapter.DisplayTitle(),
			}
			items = append(items, model.ProjectionItem{Kind: model.ProjectionItemTransition, Transition: &marker})
		}
	}
	return items
}

// findFlatIndex returns the index of the FlatPage matching (chapterID,
// pageIndex), if any.
func findFlatIndex(items []model.ProjectionItem, chapterID string, pageIndex int) (int, bool) {
	for i, item := range items {
		if item.Kind != model.ProjectionItemPage {
			continue
		}
		if item.Page.ChapterID == chapterID && item.Page.PageIndex == pageIndex {
			return i, true
		}
	}
	return 0, false
}

// lastPageIndex returns the highest PageIndex among pages, for the
// prepend-to-head "land on the last page of the new chapter" transition.
func lastPageIndex(pages []model.PageDescriptor) int {
	max := 0
	for _, page := range pages {
		if page.PageIndex > max {
			max = page.PageIndex
		}
	}
	return max
}

// samePageSet reports whether two page slices describe the same pages at
// the same indices with the same URLs — the "page set is unchanged" check
// of spec.md §4.3.2's append_chapter no-op case.
func samePageSet(a, b []model.PageDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	byIndex := make(map[int]string, len(a))
	for _, page := range a {
		byIndex[page.PageIndex] = page.ImageURL
	}
	for _, page := range b {
		url, ok := byIndex[page.PageIndex]
		if !ok || url != page.ImageURL {
			return false
		}
	}
	return true
}

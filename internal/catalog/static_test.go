// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dk5761/reader/internal/catalog"
	"github.com/dk5761/reader/internal/reader/model"
)

/*
TestStatic_FetchChaptersAndPagesRoundTrip verifies that registered fixtures
are retrievable and defensively copied.
*/
func TestStatic_FetchChaptersAndPagesRoundTrip(t *testing.T) {
	fixture := catalog.NewStatic()
	fixture.AddWork("demo", "work-1", model.WorkMeta{Title: "Demo"}, []model.ChapterDescriptor{
		{ID: "ch-1", Ordinal: 0},
	})
	fixture.AddChapter("ch-1", []model.PageDescriptor{
		{ID: "ch-1::0", ChapterID: "ch-1", PageIndex: 0, ImageURL: "https://example.test/0"},
	})

	chapters, err := fixture.FetchChapters(context.Background(), "work-1")
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "ch-1", chapters[0].ID)

	pages, err := fixture.FetchPages(context.Background(), "ch-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "ch-1::0", pages[0].ID)

	meta, err := fixture.FetchWorkMeta(context.Background(), "demo", "work-1")
	require.NoError(t, err)
	assert.Equal(t, "Demo", meta.Title)
}

/*
TestStatic_FetchUnknownReturnsError verifies unknown ids surface an error
rather than an empty success.
*/
func TestStatic_FetchUnknownReturnsError(t *testing.T) {
	fixture := catalog.NewStatic()

	_, err := fixture.FetchChapters(context.Background(), "missing")
	assert.Error(t, err)

	_, err = fixture.FetchPages(context.Background(), "missing")
	assert.Error(t, err)

	_, err = fixture.FetchWorkMeta(context.Background(), "src", "missing")
	assert.Error(t, err)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"context"

	"github.com/dk5761/reader/internal/reader/model"
)

// Catalog is the chapter/page catalog collaborator of spec.md §6.1, narrowed
// to what the engine needs to open a session. internal/catalog.Client and
// internal/catalog.Static both satisfy it.
type Catalog interface {
	FetchChapters(ctx context.Context, workID string) ([]model.ChapterDescriptor, error)
	FetchPages(ctx context.Context, chapterID string) ([]model.PageDescriptor, error)
	FetchWorkMeta(ctx context.Context, sourceID, workID string) (model.WorkMeta, error)
}

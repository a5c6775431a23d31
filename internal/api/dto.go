// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"github.com/dk5761/reader/internal/reader/engine"
	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/scheduler"
	"github.com/dk5761/reader/pkg/pointer"
	"github.com/dk5761/reader/pkg/slice"
	"github.com/dk5761/reader/pkg/slug"
)

// # Response Payloads

// workMetaDTO is the wire representation of [model.WorkMeta]. Slug is derived
// from Title for clients that want a human-readable URL segment; it is not
// part of [model.WorkMeta] itself.
type workMetaDTO struct {
	SourceID     string `json:"source_id"`
	WorkID       string `json:"work_id"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// flatPageDTO is the wire representation of a page entry in the flat projection.
type flatPageDTO struct {
	PageID              string            `json:"page_id"`
	ChapterID           string            `json:"chapter_id"`
	ChapterOrdinal      int               `json:"chapter_ordinal"`
	PageIndex           int               `json:"page_index"`
	TotalPagesInChapter int               `json:"total_pages_in_chapter"`
	ImageURL            string            `json:"image_url"`
	Headers             map[string]string `json:"headers,omitempty"`
}

// transitionDTO is the wire representation of a transition marker between
// two adjacent loaded chapters.
type transitionDTO struct {
	FromChapterID    string `json:"from_chapter_id"`
	FromChapterTitle string `json:"from_chapter_title"`
	ToChapterID      string `json:"to_chapter_id"`
	ToChapterTitle   string `json:"to_chapter_title"`
}

// projectionItemDTO tags exactly one of Page/Transition, mirroring
// [model.ProjectionItem]'s Kind discriminator.
type projectionItemDTO struct {
	Kind       string         `json:"kind"`
	Page       *flatPageDTO   `json:"page,omitempty"`
	Transition *transitionDTO `json:"transition,omitempty"`
}

// projectionDTO is the wire representation of [engine.Snapshot]'s
// store-owned fields: the flat page list plus the cursor.
type projectionDTO struct {
	SessionKey       string              `json:"session_key"`
	Meta             workMetaDTO         `json:"meta"`
	FlatPages        []projectionItemDTO `json:"flat_pages"`
	CurrentFlatIndex *int                `json:"current_flat_index"`
	CurrentChapterID *string             `json:"current_chapter_id"`
	CurrentPageIndex *int                `json:"current_page_index"`

	NextChapterLoading     bool `json:"next_chapter_loading"`
	NextChapterError       bool `json:"next_chapter_error"`
	PreviousChapterLoading bool `json:"previous_chapter_loading"`
	PreviousChapterError   bool `json:"previous_chapter_error"`
}

// pageStateDTO is the wire representation of [scheduler.PageState].
type pageStateDTO struct {
	Kind        string  `json:"kind"`
	Lane        string  `json:"lane,omitempty"`
	Attempt     int     `json:"attempt,omitempty"`
	LocalPath   string  `json:"local_path,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	Retriable   bool    `json:"retriable,omitempty"`
	LastError   string  `json:"last_error,omitempty"`
	Terminal    bool    `json:"terminal,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	NextRetryAt *string `json:"next_retry_at,omitempty"`
}

// laneStatsDTO is the wire representation of [scheduler.LaneStats].
type laneStatsDTO struct {
	QueueSize int `json:"queue_size"`
	InFlight  int `json:"in_flight"`
}

// statsDTO is the wire representation of [scheduler.Stats].
type statsDTO struct {
	Lanes                map[string]laneStatsDTO `json:"lanes"`
	Cancelled            int64                   `json:"cancelled"`
	Deprioritized        int64                   `json:"deprioritized"`
	CursorToFirstReadyMs *int64                  `json:"cursor_to_first_ready_ms,omitempty"`
}

// snapshotDTO is the wire representation of the scheduler debug snapshot
// half of [engine.Snapshot] (the `GET /v1/sessions/{id}/snapshot` route).
type snapshotDTO struct {
	Pages map[string]pageStateDTO `json:"pages"`
	Stats statsDTO                `json:"stats"`
}

func toWorkMetaDTO(meta model.WorkMeta) workMetaDTO {
	return workMetaDTO{
		SourceID:     meta.SourceID,
		WorkID:       meta.WorkID,
		Title:        meta.Title,
		Slug:         slug.From(meta.Title),
		ThumbnailURL: meta.ThumbnailURL,
	}
}

func toProjectionDTO(snap engine.Snapshot) projectionDTO {
	items := slice.Map(snap.FlatPages, toProjectionItemDTO)

	return projectionDTO{
		SessionKey:             snap.SessionKey,
		Meta:                   toWorkMetaDTO(snap.Meta),
		FlatPages:              items,
		CurrentFlatIndex:       snap.CurrentFlatIndex,
		CurrentChapterID:       snap.CurrentChapterID,
		CurrentPageIndex:       snap.CurrentPageIndex,
		NextChapterLoading:     snap.NextChapterLoading,
		NextChapterError:       snap.NextChapterError,
		PreviousChapterLoading: snap.PreviousChapterLoading,
		PreviousChapterError:   snap.PreviousChapterError,
	}
}

func toProjectionItemDTO(item model.ProjectionItem) projectionItemDTO {
	switch item.Kind {
	case model.ProjectionItemPage:
		return projectionItemDTO{Kind: "page", Page: toFlatPageDTO(item.Page)}
	case model.ProjectionItemTransition:
		return projectionItemDTO{Kind: "transition", Transition: toTransitionDTO(item.Transition)}
	default:
		return projectionItemDTO{Kind: "unknown"}
	}
}

func toFlatPageDTO(page *model.FlatPage) *flatPageDTO {
	if page == nil {
		return nil
	}
	return &flatPageDTO{
		PageID:              page.PageID,
		ChapterID:           page.ChapterID,
		ChapterOrdinal:      page.ChapterOrdinal,
		PageIndex:           page.PageIndex,
		TotalPagesInChapter: page.TotalPagesInChapter,
		ImageURL:            page.ImageURL,
		Headers:             page.Headers,
	}
}

func toTransitionDTO(marker *model.TransitionMarker) *transitionDTO {
	if marker == nil {
		return nil
	}
	return &transitionDTO{
		FromChapterID:    marker.FromChapterID,
		FromChapterTitle: marker.FromChapterTitle,
		ToChapterID:      marker.ToChapterID,
		ToChapterTitle:   marker.ToChapterTitle,
	}
}

// toSnapshotDTO converts the scheduler debug snapshot to its wire shape. When
// laneFilter is non-empty, only pages currently queued/loading/errored in one of
// the named lanes are included, per the `?lane=` filter on the snapshot route.
func toSnapshotDTO(snap engine.Snapshot, laneFilter []string) snapshotDTO {
	wanted := make(map[string]bool, len(laneFilter))
	for _, name := range laneFilter {
		wanted[name] = true
	}

	pages := make(map[string]pageStateDTO, len(snap.Pages))
	for id, state := range snap.Pages {
		dto := toPageStateDTO(state)
		if len(wanted) > 0 && !wanted[dto.Lane] {
			continue
		}
		pages[id] = dto
	}

	laneStatsByName := make(map[string]laneStatsDTO, len(snap.Stats.Lanes))
	for lane, laneStats := range snap.Stats.Lanes {
		laneStatsByName[lane.String()] = laneStatsDTO{QueueSize: laneStats.QueueSize, InFlight: laneStats.InFlight}
	}

	return snapshotDTO{
		Pages: pages,
		Stats: statsDTO{
			Lanes:                laneStatsByName,
			Cancelled:            snap.Stats.Cancelled,
			Deprioritized:        snap.Stats.Deprioritized,
			CursorToFirstReadyMs: snap.Stats.CursorToFirstReadyMs,
		},
	}
}

func toPageStateDTO(state scheduler.PageState) pageStateDTO {
	dto := pageStateDTO{
		Kind:      state.Kind.String(),
		Attempt:   state.Attempt,
		LocalPath: state.LocalPath,
		Width:     state.Width,
		Height:    state.Height,
		Retriable: state.Retriable,
		LastError: state.LastError,
		Terminal:  state.Terminal,
		Reason:    state.Reason,
	}
	switch state.Kind {
	case scheduler.PageQueued, scheduler.PageLoading, scheduler.PageError:
		dto.Lane = state.Lane.String()
	}
	if state.NextRetryAt != nil {
		dto.NextRetryAt = pointer.To(state.NextRetryAt.Format(timeFormat))
	}
	return dto
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

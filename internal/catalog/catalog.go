// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog provides the default chapter/page catalog collaborators of
SPEC_FULL.md §B.2. The core treats the catalog as an external collaborator
(spec.md §6.1); this package supplies a concrete HTTP-backed [Client] for a
real deployment and an in-memory [Static] fixture for tests and the demo
binary's offline mode.
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dk5761/reader/internal/reader/model"
)

// Client is the default catalog collaborator: an http.Client-backed GET +
// JSON decode against a configurable base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the default catalog client. baseURL is the root of a
// REST-ish catalog service exposing `GET {baseURL}/works/{workID}/chapters`
// and `GET {baseURL}/chapters/{chapterID}/pages`.
func NewClient(baseURL string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: requestTimeout}}
}

type chapterDTO struct {
	ID      string   `json:"id"`
	Ordinal int      `json:"ordinal"`
	Number  *float64 `json:"number,omitempty"`
	Title   *string  `json:"title,omitempty"`
	URL     string   `json:"url"`
}

type pageDTO struct {
	ID        string            `json:"id"`
	ChapterID string            `json:"chapter_id"`
	PageIndex int               `json:"page_index"`
	ImageURL  string            `json:"image_url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Width     *int              `json:"width,omitempty"`
	Height    *int              `json:"height,omitempty"`
}

type workMetaDTO struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// FetchChapters implements engine.Catalog.
func (c *Client) FetchChapters(ctx context.Context, workID string) ([]model.ChapterDescriptor, error) {
	path := fmt.Sprintf("%s/works/%s/chapters", c.baseURL, url.PathEscape(workID))
	var dtos []chapterDTO
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("catalog: fetch chapters for work %q: %w", workID, err)
	}

	chapters := make([]model.ChapterDescriptor, 0, len(dtos))
	for _, dto := range dtos {
		chapters = append(chapters, model.ChapterDescriptor{
			ID:      dto.ID,
			Ordinal: dto.Ordinal,
			Number:  dto.Number,
			Title:   dto.Title,
			URL:     dto.URL,
		})
	}
	return chapters, nil
}

// FetchPages implements engine.Catalog.
func (c *Client) FetchPages(ctx context.Context, chapterID string) ([]model.PageDescriptor, error) {
	path := fmt.Sprintf("%s/chapters/%s/pages", c.baseURL, url.PathEscape(chapterID))
	var dtos []pageDTO
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("catalog: fetch pages for chapter %q: %w", chapterID, err)
	}

	pages := make([]model.PageDescriptor, 0, len(dtos))
	for _, dto := range dtos {
		pages = append(pages, model.PageDescriptor{
			ID:        dto.ID,
			ChapterID: dto.ChapterID,
			PageIndex: dto.PageIndex,
			ImageURL:  dto.ImageURL,
			Headers:   dto.Headers,
			Width:     dto.Width,
			Height:    dto.Height,
		})
	}
	return pages, nil
}

// FetchWorkMeta implements engine.Catalog.
func (c *Client) FetchWorkMeta(ctx context.Context, sourceID, workID string) (model.WorkMeta, error) {
	path := fmt.Sprintf("%s/sources/%s/works/%s", c.baseURL, url.PathEscape(sourceID), url.PathEscape(workID))
	var dto workMetaDTO
	if err := c.getJSON(ctx, path, &dto); err != nil {
		return model.WorkMeta{}, fmt.Errorf("catalog: fetch work meta for %q/%q: %w", sourceID, workID, err)
	}
	return model.WorkMeta{SourceID: sourceID, WorkID: workID, Title: dto.Title, ThumbnailURL: dto.ThumbnailURL}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

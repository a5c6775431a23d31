// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cache implements the content-addressed, per-chapter-evictable image
cache of spec.md §4.2.

A [Cache] deduplicates concurrent downloads of the same (chapter_id, url)
pair with [golang.org/x/sync/singleflight], decodes pixel dimensions with a
pluggable [ImageDecoder], and evicts whole chapters by filename prefix. The
scheduler is the cache's only caller; the cache never reaches back into the
scheduler or the store.
*/
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dk5761/reader/internal/reader/model"
)

// maxFilenameBytes bounds the derived filename so it stays safe across
// filesystems with tight path-component limits (see SPEC_FULL.md §C.2a).
const maxFilenameBytes = 200

// Downloader is the "HTTP client" collaborator of spec.md §6.1: it issues a
// GET with optional headers and returns the response status and body.
type Downloader interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (status int, body io.ReadCloser, err error)
}

// Filesystem is the "Filesystem" collaborator of spec.md §6.1.
type Filesystem interface {
	Exists(path string) bool
	MakeDirectory(path string) error
	WriteFile(path string, r io.Reader) error
	Delete(path string) error
	ReadDirNames(dir string) ([]string, error)
}

// ImageDecoder is the "Image-dimension decoder" collaborator of spec.md §6.1.
type ImageDecoder interface {
	Decode(path string) (width, height int, err error)
}

// Cache is the content-addressed on-disk image store owned by the scheduler.
type Cache struct {
	root       string
	fs         Filesystem
	downloader Downloader
	decoder    ImageDecoder
	logger     *slog.Logger

	group singleflight.Group

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter // per-host token bucket

	inflightMu sync.Mutex
	inflight   map[string]int // local path -> number of in-progress writers, guards eviction races
}

// New constructs a [Cache] rooted at root (created on first use).
func New(root string, fs Filesystem, downloader Downloader, decoder ImageDecoder, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		root:       root,
		fs:         fs,
		downloader: downloader,
		decoder:    decoder,
		logger:     logger.With(slog.String("component", "image_cache")),
		limiters:   make(map[string]*rate.Limiter),
		inflight:   make(map[string]int),
	}
}

// Fetch returns a [model.CachedArtifact] for (chapterID, rawURL), downloading
// exactly once across concurrent callers for the same pair.
func (c *Cache) Fetch(ctx context.Context, chapterID, rawURL string, headers map[string]string) (*model.CachedArtifact, error) {
	filename := deriveFilename(chapterID, rawURL)
	localPath := filepath.Join(c.root, filename)
	key := chapterID + "\x00" + rawURL

	result, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchOnce(ctx, rawURL, headers, localPath)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.CachedArtifact), nil
}

func (c *Cache) fetchOnce(ctx context.Context, rawURL string, headers map[string]string, localPath string) (*model.CachedArtifact, error) {
	c.beginWrite(localPath)
	defer c.endWrite(localPath)

	if c.fs.Exists(localPath) {
		if width, height, decodeErr := c.decoder.Decode(localPath); decodeErr == nil {
			return &model.CachedArtifact{OriginalURL: rawURL, LocalPath: localPath, Width: width, Height: height}, nil
		}
		_ = c.fs.Delete(localPath)
	}

	if err := c.fs.MakeDirectory(c.root); err != nil {
		return nil, &model.DownloadError{Message: "failed to create cache directory", Code: model.DownloadErrorUnknown, Cause: err}
	}

	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, model.NewNetworkError(err)
	}

	status, body, err := c.downloader.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, model.NewNetworkError(err)
	}
	defer body.Close()

	if status != 200 {
		_, _ = io.Copy(io.Discard, body)
		return nil, model.NewHTTPError(status)
	}

	if err := c.fs.WriteFile(localPath, body); err != nil {
		return nil, &model.DownloadError{Message: "failed to write downloaded file", Code: model.DownloadErrorUnknown, Cause: err}
	}

	width, height, err := c.decoder.Decode(localPath)
	if err != nil {
		_ = c.fs.Delete(localPath)
		return nil, model.NewDecodeError(err)
	}

	return &model.CachedArtifact{OriginalURL: rawURL, LocalPath: localPath, Width: width, Height: height}, nil
}

// EvictChapter deletes every cached file belonging to chapterID. It never
// fails loudly and it skips files whose download is still in flight, so a
// concurrent Fetch for that chapter is never left with a half-deleted file.
func (c *Cache) EvictChapter(chapterID string) {
	prefix := urlEncode(chapterID) + "_"
	names, err := c.fs.ReadDirNames(c.root)
	if err != nil {
		c.logger.Debug("evict_chapter_list_failed", slog.String("chapter_id", chapterID), slog.Any("error", err))
		return
	}

	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		path := filepath.Join(c.root, name)
		if c.isInFlight(path) {
			continue
		}
		if err := c.fs.Delete(path); err != nil {
			c.logger.Debug("evict_chapter_delete_failed", slog.String("path", path), slog.Any("error", err))
		}
	}
}

// ClearAll deletes the cache root and recreates it empty.
func (c *Cache) ClearAll() error {
	names, err := c.fs.ReadDirNames(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c.fs.MakeDirectory(c.root)
		}
		return err
	}
	for _, name := range names {
		_ = c.fs.Delete(filepath.Join(c.root, name))
	}
	return c.fs.MakeDirectory(c.root)
}

func (c *Cache) limiterFor(rawURL string) *rate.Limiter {
	host := "default"
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	limiter, ok := c.limiters[host]
	if !ok {
		// 8 requests/sec sustained, burst of 4 — polite pacing per CDN host.
		limiter = rate.NewLimiter(rate.Limit(8), 4)
		c.limiters[host] = limiter
	}
	return limiter
}

func (c *Cache) beginWrite(path string) {
	c.inflightMu.Lock()
	c.inflight[path]++
	c.inflightMu.Unlock()
}

func (c *Cache) endWrite(path string) {
	c.inflightMu.Lock()
	c.inflight[path]--
	if c.inflight[path] <= 0 {
		delete(c.inflight, path)
	}
	c.inflightMu.Unlock()
}

func (c *Cache) isInFlight(path string) bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	return c.inflight[path] > 0
}

// deriveFilename computes the stable filename for (chapterID, rawURL) per
// spec.md §6.4, falling back to a hashed URL segment when the literal
// encoding would exceed maxFilenameBytes (SPEC_FULL.md §C.2a).
func deriveFilename(chapterID, rawURL string) string {
	ext := deriveExtension(rawURL)
	encodedChapter := urlEncode(chapterID)
	encodedURL := urlEncode(rawURL)

	name := fmt.Sprintf("%s_%s%s", encodedChapter, encodedURL, ext)
	if len(name) <= maxFilenameBytes {
		return name
	}
	return fmt.Sprintf("%s_%s%s", encodedChapter, hashURL(rawURL), ext)
}

func urlEncode(s string) string {
	return url.QueryEscape(s)
}

var knownImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".avif": true, ".bmp": true,
}

// deriveExtension resolves SPEC_FULL.md §C.2: the path component before the
// query/fragment is used, a known image extension is kept verbatim, and
// anything else (no extension, query-only URL, unknown extension) falls back
// to ".img". filepath.Ext returns only the last dot-segment, so a double
// extension such as "page.1.jpg" or "a.jpg.jpg" yields ".jpg".
func deriveExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ".img"
	}
	ext := strings.ToLower(filepath.Ext(parsed.Path))
	if knownImageExtensions[ext] {
		return ext
	}
	return ".img"
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cache

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// OSFilesystem is the default [Filesystem] collaborator, backed by the local
// disk. Writes go through a temporary file and an atomic rename so a reader
// racing a write never observes a partial file.
type OSFilesystem struct{}

// NewOSFilesystem constructs the default filesystem collaborator.
func NewOSFilesystem() OSFilesystem { return OSFilesystem{} }

func (OSFilesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFilesystem) MakeDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (OSFilesystem) WriteFile(path string, r io.Reader) error {
	tmp := path + ".part"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (OSFilesystem) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (OSFilesystem) ReadDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// HTTPDownloader is the default [Downloader] collaborator, backed by
// [net/http]. Callers are expected to rate-limit before invoking Get — the
// cache itself does that per host.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader constructs the default downloader with a bounded request
// timeout; individual fetches are still cancellable via ctx.
func NewHTTPDownloader(requestTimeout time.Duration) *HTTPDownloader {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &HTTPDownloader{client: &http.Client{Timeout: requestTimeout}}
}

func (d *HTTPDownloader) Get(ctx context.Context, rawURL string, headers map[string]string) (int, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}

// StdImageDecoder is the default [ImageDecoder] collaborator, backed by the
// standard library's registered image codecs (jpeg, png, gif). WebP, AVIF
// and BMP sources fail to decode unless a codec for them is registered
// elsewhere in the binary; SPEC_FULL.md §B.3 leaves swapping in a dedicated
// decoder to the embedding application.
type StdImageDecoder struct{}

// NewStdImageDecoder constructs the default image decoder.
func NewStdImageDecoder() StdImageDecoder { return StdImageDecoder{} }

func (StdImageDecoder) Decode(path string) (int, int, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}
	return config.Width, config.Height, nil
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package model

import "fmt"

// DownloadErrorCode classifies a [DownloadError] by kind, per spec.md §4.2.2.
type DownloadErrorCode string

const (
	// DownloadErrorNetwork covers transport failures: connection reset, DNS, timeout.
	DownloadErrorNetwork DownloadErrorCode = "network"
	// DownloadErrorHTTP covers a non-200 HTTP status.
	DownloadErrorHTTP DownloadErrorCode = "http"
	// DownloadErrorDecode covers a downloaded file that fails image-dimension decoding.
	DownloadErrorDecode DownloadErrorCode = "decode"
	// DownloadErrorUnknown covers anything that doesn't fit the above.
	DownloadErrorUnknown DownloadErrorCode = "unknown"
)

// DownloadError is the error type the image cache returns from Fetch. The
// scheduler inspects Retriable and StatusCode to drive retry policy
// (spec.md §4.1.6) without caring about the underlying cause.
type DownloadError struct {
	Message    string
	Retriable  bool
	Code       DownloadErrorCode
	StatusCode *int
	Cause      error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	if e.StatusCode != nil {
		return fmt.Sprintf("download: %s (status=%d, code=%s)", e.Message, *e.StatusCode, e.Code)
	}
	return fmt.Sprintf("download: %s (code=%s)", e.Message, e.Code)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *DownloadError) Unwrap() error { return e.Cause }

// NewNetworkError wraps a transport-level failure. Always retriable.
func NewNetworkError(cause error) *DownloadError {
	return &DownloadError{
		Message:   "transport failure",
		Retriable: true,
		Code:      DownloadErrorNetwork,
		Cause:     cause,
	}
}

// NewHTTPError classifies a non-200 response. Retriable for 408, 429, and 5xx.
func NewHTTPError(statusCode int) *DownloadError {
	status := statusCode
	return &DownloadError{
		Message:    fmt.Sprintf("unexpected HTTP status %d", statusCode),
		Retriable:  isRetriableStatus(statusCode),
		Code:       DownloadErrorHTTP,
		StatusCode: &status,
	}
}

// NewDecodeError wraps an image-dimension decode failure. Always retriable
// (the file is deleted and a fresh download is attempted).
func NewDecodeError(cause error) *DownloadError {
	return &DownloadError{
		Message:   "failed to decode image dimensions",
		Retriable: true,
		Code:      DownloadErrorDecode,
		Cause:     cause,
	}
}

// isRetriableStatus implements spec.md §4.2.1/§7: 5xx, 408, and 429 are
// retriable; other 4xx are not.
func isRetriableStatus(status int) bool {
	if status == 408 || status == 429 {
		return true
	}
	return status >= 500
}

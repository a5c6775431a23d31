// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scheduler implements the page download scheduler of spec.md §4.1: the
per-page state machine, the five priority lanes, desired-set reconciliation,
admission/dispatch, auto-retry, and cache-eviction coupling.

The scheduler is the sole owner of [PageState] — the reading-window store
(internal/reader/store) only ever holds immutable [model.PageDescriptor]s.
*/
package scheduler

import (
	"time"

	"github.com/dk5761/reader/internal/reader/model"
)

// PageStateKind discriminates [PageState] variants. A PageState always
// carries exactly the fields relevant to its Kind; callers must switch on
// Kind before reading any other field.
type PageStateKind int

const (
	// PageIdle is the initial state: known, not queued.
	PageIdle PageStateKind = iota
	// PageQueued is present in exactly one lane queue.
	PageQueued
	// PageLoading is dispatched into a worker pool.
	PageLoading
	// PageReady is a terminal success.
	PageReady
	// PageError is a failure, possibly pending auto-retry.
	PageError
	// PageCancelled means the page was deprioritized out of the desired set.
	PageCancelled
)

func (k PageStateKind) String() string {
	switch k {
	case PageIdle:
		return "idle"
	case PageQueued:
		return "queued"
	case PageLoading:
		return "loading"
	case PageReady:
		return "ready"
	case PageError:
		return "error"
	case PageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PageState is the tagged-variant runtime state of spec.md §4.1.2. A single
// sum type (selected by Kind) makes the legal transition graph directly
// expressible in the scheduler's mutation methods, instead of scattering
// bools across a flag-bag struct.
type PageState struct {
	Kind PageStateKind

	// Queued / Loading / Error
	Lane Lane

	// Queued
	QueuedAt time.Time

	// Loading / Error
	Attempt int

	// Loading
	StartedAt time.Time

	// Ready
	LocalPath string
	Width     int
	Height    int
	LoadedAt  time.Time

	// Error
	Retriable   bool
	Code        model.DownloadErrorCode
	StatusCode  *int
	LastError   string
	NextRetryAt *time.Time
	Terminal    bool
	FailedAt    time.Time

	// Cancelled
	Reason      string
	CancelledAt time.Time

	// Token is the monotonically increasing per-page dispatch token
	// (spec.md §4.1.2). A Loading resolution whose captured token no longer
	// matches the page's current token is dropped silently.
	Token int64
}

func idleState() PageState {
	return PageState{Kind: PageIdle}
}

func queuedState(lane Lane) PageState {
	return PageState{Kind: PageQueued, Lane: lane, QueuedAt: time.Now()}
}

func loadingState(lane Lane, attempt int, token int64) PageState {
	return PageState{Kind: PageLoading, Lane: lane, Attempt: attempt, StartedAt: time.Now(), Token: token}
}

func readyState(artifact *model.CachedArtifact) PageState {
	return PageState{
		Kind:      PageReady,
		LocalPath: artifact.LocalPath,
		Width:     artifact.Width,
		Height:    artifact.Height,
		LoadedAt:  time.Now(),
	}
}

func errorState(lane Lane, attempt int, downloadErr *model.DownloadError, terminal bool, nextRetryAt *time.Time) PageState {
	state := PageState{
		Kind:        PageError,
		Lane:        lane,
		Attempt:     attempt,
		Retriable:   downloadErr.Retriable,
		Code:        downloadErr.Code,
		StatusCode:  downloadErr.StatusCode,
		LastError:   downloadErr.Error(),
		NextRetryAt: nextRetryAt,
		Terminal:    terminal,
		FailedAt:    time.Now(),
	}
	return state
}

func cancelledState(reason string) PageState {
	return PageState{Kind: PageCancelled, Reason: reason, CancelledAt: time.Now()}
}

// reviveEligible reports whether a page currently in this state can be
// (re-)enqueued by desired-set reconciliation per spec.md §4.1.4: Idle,
// Queued (any lane), Cancelled, or a non-terminal Error.
func (s PageState) reviveEligible() bool {
	switch s.Kind {
	case PageIdle, PageQueued, PageCancelled:
		return true
	case PageError:
		return !s.Terminal
	default:
		return false
	}
}

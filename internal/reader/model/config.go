// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package model

// Config is the full set of tunables named in spec.md §6.3. It is built by
// the process wiring (internal/platform/config reads the environment; the
// demo binary or a test maps that onto this struct) and passed by value into
// engine.New, which normalizes it, hands it to the scheduler constructor, and
// passes the two progress intervals to the progress writer; the store takes
// no Config. The engine itself never reads environment variables.
type Config struct {
	// WindowAhead is the foreground window depth ahead of the cursor. [3,12].
	WindowAhead int
	// WindowBehind is the foreground window depth behind the cursor. [0,3].
	WindowBehind int
	// ForegroundConcurrency bounds the foreground worker pool. [1,2].
	ForegroundConcurrency int
	// BackgroundConcurrency bounds the background worker pool. [0,2].
	BackgroundConcurrency int
	// ChapterPreloadLeadPages is the remaining-page threshold for next-chapter prefetch. [2,8].
	ChapterPreloadLeadPages int
	// MaxAutoRetries is the max automatic retries on a retriable error. [0,∞).
	MaxAutoRetries int
	// AutoRetryBackoffMS is the backoff schedule in milliseconds.
	AutoRetryBackoffMS []int
	// MaxWindow is the max loaded chapters before pruning. [1,∞).
	MaxWindow int
	// ProgressDebounceMS is the debounce window for progress writes.
	ProgressDebounceMS int
	// TimelineDupGuardMS is the dedup window for timeline events.
	TimelineDupGuardMS int
}

// DefaultConfig returns the spec.md §6.3 defaults.
func DefaultConfig() Config {
	return Config{
		WindowAhead:             6,
		WindowBehind:            2,
		ForegroundConcurrency:   2,
		BackgroundConcurrency:   1,
		ChapterPreloadLeadPages: 4,
		MaxAutoRetries:          2,
		AutoRetryBackoffMS:      []int{750, 2000},
		MaxWindow:               3,
		ProgressDebounceMS:      400,
		TimelineDupGuardMS:      5000,
	}
}

// Normalize clamps every field to the range declared in spec.md §6.3 and
// fills in a safe fallback backoff schedule if none was supplied. It is
// idempotent and is always called by engine.New and the scheduler constructor, so
// callers building a Config from untrusted input (env vars, HTTP request
// bodies) never need to validate it themselves.
func (c Config) Normalize() Config {
	c.WindowAhead = clamp(c.WindowAhead, 3, 12)
	c.WindowBehind = clamp(c.WindowBehind, 0, 3)
	c.ForegroundConcurrency = clamp(c.ForegroundConcurrency, 1, 2)
	c.BackgroundConcurrency = clamp(c.BackgroundConcurrency, 0, 2)
	c.ChapterPreloadLeadPages = clamp(c.ChapterPreloadLeadPages, 2, 8)
	if c.MaxAutoRetries < 0 {
		c.MaxAutoRetries = 0
	}
	if len(c.AutoRetryBackoffMS) == 0 {
		c.AutoRetryBackoffMS = []int{750, 2000}
	}
	if c.MaxWindow < 1 {
		c.MaxWindow = 1
	}
	if c.ProgressDebounceMS <= 0 {
		c.ProgressDebounceMS = 400
	}
	if c.TimelineDupGuardMS <= 0 {
		c.TimelineDupGuardMS = 5000
	}
	return c
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

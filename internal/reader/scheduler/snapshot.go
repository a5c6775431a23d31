// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler

// LaneStats reports the debug counters of a single lane (spec.md §4.1.8).
type LaneStats struct {
	QueueSize int
	InFlight  int
}

// Stats bundles the scheduler's debug statistics.
type Stats struct {
	Lanes                map[Lane]LaneStats
	Cancelled            int64
	Deprioritized        int64
	CursorToFirstReadyMs *int64
}

// Snapshot is the immutable view returned by [Scheduler.Snapshot]: per-page
// runtime state plus debug statistics, per spec.md §4.1.1.
type Snapshot struct {
	Pages map[string]PageState
	Stats Stats
}

func (s *Scheduler) buildSnapshotLocked() Snapshot {
	pages := make(map[string]PageState, len(s.states))
	for id, state := range s.states {
		pages[id] = state
	}

	lanes := make(map[Lane]LaneStats, laneCount)
	for lane := Lane(0); int(lane) < laneCount; lane++ {
		inFlight := 0
		for _, state := range s.states {
			if state.Kind == PageLoading && state.Lane == lane {
				inFlight++
			}
		}
		lanes[lane] = LaneStats{QueueSize: s.queues[lane].len(), InFlight: inFlight}
	}

	var cursorToFirstReady *int64
	if s.cursorToFirstReadyMs != nil {
		value := *s.cursorToFirstReadyMs
		cursorToFirstReady = &value
	}

	return Snapshot{
		Pages: pages,
		Stats: Stats{
			Lanes:                lanes,
			Cancelled:            s.cancelledCount,
			Deprioritized:        s.deprioritizedCount,
			CursorToFirstReadyMs: cursorToFirstReady,
		},
	}
}

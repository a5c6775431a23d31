// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"github.com/dk5761/reader/internal/reader/model"
	"github.com/dk5761/reader/internal/reader/scheduler"
)

// Snapshot is the merged view spec.md §6.2 exposes to the UI renderer: the
// store's flat projection and cursor, plus the scheduler's per-page runtime
// state and debug statistics.
type Snapshot struct {
	SessionKey string
	Meta       model.WorkMeta

	FlatPages        []model.ProjectionItem
	CurrentFlatIndex *int
	CurrentChapterID *string
	CurrentPageIndex *int

	NextChapterLoading     bool
	NextChapterError       bool
	PreviousChapterLoading bool
	PreviousChapterError   bool

	Pages map[string]scheduler.PageState
	Stats scheduler.Stats
}

// Snapshot returns the current merged view. Returns the zero [Snapshot] if
// no session is open.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return Snapshot{}
	}
	return s.buildSnapshotLocked()
}

func (s *Session) buildSnapshotLocked() Snapshot {
	state := s.store.Snapshot()
	schedSnapshot := s.scheduler.Snapshot()
	return Snapshot{
		SessionKey:             state.SessionKey,
		Meta:                   state.Meta,
		FlatPages:              state.FlatPages,
		CurrentFlatIndex:       state.CurrentFlatIndex,
		CurrentChapterID:       state.CurrentChapterID,
		CurrentPageIndex:       state.CurrentPageIndex,
		NextChapterLoading:     state.NextChapterLoading,
		NextChapterError:       state.NextChapterError,
		PreviousChapterLoading: state.PreviousChapterLoading,
		PreviousChapterError:   state.PreviousChapterError,
		Pages:                  schedSnapshot.Pages,
		Stats:                  schedSnapshot.Stats,
	}
}

// Subscribe registers listener to be invoked after every cursor-moving
// command, every chapter load, and every change to the scheduler's
// observable snapshot (spec.md §6.2's event stream). Listeners run with s.mu
// released, so they may call session methods such as [Session.Snapshot].
// The returned func unsubscribes.
func (s *Session) Subscribe(listener func()) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// onSchedulerChange is the scheduler subscription callback: it forwards the
// scheduler's own change notifications to the engine's listeners, since a
// scheduler-internal event (a page becoming Ready, say) changes the merged
// snapshot even though no store or session command caused it. The scheduler
// notifies synchronously, often from inside a session command that holds
// s.mu (Open, SetFlatIndex, SwitchToChapter, a chapter load), so the
// forwarding runs on its own goroutine instead of waiting for s.mu there.
func (s *Session) onSchedulerChange() {
	go s.notify()
}

// notify copies the listener set under lock, then invokes every listener
// after releasing it — mirroring [scheduler.Scheduler]'s own notify, so a
// listener is free to call back into a session command without deadlocking
// on s.mu. notify itself takes s.mu, so it is never called while s.mu is held.
func (s *Session) notify() {
	s.mu.Lock()
	listeners := snapshotListeners(s.listeners)
	s.mu.Unlock()
	for _, listener := range listeners {
		listener()
	}
}

func snapshotListeners(listeners map[int]func()) []func() {
	out := make([]func(), 0, len(listeners))
	for _, listener := range listeners {
		out = append(out, listener)
	}
	return out
}

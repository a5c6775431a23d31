// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package engine

import (
	"context"
	"fmt"
	"sync"
)

// Manager multiplexes many concurrently open [Session]s behind a session-key
// lookup, for a server process that serves more than one reader at once.
// Each [Session] already owns an exclusive store/scheduler/resolver/writer
// stack for a single reading session; Manager only adds the registry layer
// on top, mirroring the mutex-guarded map-of-clients shape of
// [middleware.RateLimit]'s per-IP bucket registry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func() *Session
}

// NewManager constructs an empty [Manager]. factory must return a freshly
// constructed, unopened [Session] on every call (normally a thin closure
// around [New] capturing the shared catalog/cache/collaborator/logger
// dependencies).
func NewManager(factory func() *Session) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Open creates a new session via the factory, opens it against the given
// work/chapter, registers it under its minted session key, and returns it.
func (m *Manager) Open(ctx context.Context, sourceID, workID, entryChapterID string, entryPageIndex int) (*Session, error) {
	session := m.factory()
	if err := session.Open(ctx, sourceID, workID, entryChapterID, entryPageIndex); err != nil {
		return nil, err
	}

	key := session.Snapshot().SessionKey

	m.mu.Lock()
	m.sessions[key] = session
	m.mu.Unlock()

	return session, nil
}

// ErrSessionNotFound is returned by [Manager.Get]/[Manager.Close] for an
// unknown or already-closed session key.
var ErrSessionNotFound = fmt.Errorf("engine: session not found")

// Get returns the registered session for key, or [ErrSessionNotFound].
func (m *Manager) Get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close tears down the session registered under key and removes it from the
// registry. It is a no-op error (returns [ErrSessionNotFound]) if the key is
// unknown, so callers can treat repeated close calls as idempotent.
func (m *Manager) Close(key string) error {
	m.mu.Lock()
	session, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Reset()
	return nil
}

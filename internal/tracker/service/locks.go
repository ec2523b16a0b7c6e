package service

import "sync"

// sessionLocks serializes all mutations touching one session and its roster.
// The periodic tick and user actions contend on the same lock, so a settle
// can never interleave with a transition on the same session. Locks for
// different sessions are independent.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the lock for a session, creating it on first use, and
// returns the matching unlock function.
func (l *sessionLocks) lock(sessionID string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

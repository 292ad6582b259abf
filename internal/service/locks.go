package service

import "sync"

// MatchLocks serializes all state transitions on a single match. A late
// acceptance, the deadline sweep, a vote and a server report all contend on
// the same mutex, so whichever arrives first decides and the rest observe
// the decided state.
type MatchLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMatchLocks() *MatchLocks {
	return &MatchLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for matchID and returns its unlock func.
func (l *MatchLocks) Lock(matchID string) func() {
	l.mu.Lock()
	m, ok := l.locks[matchID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[matchID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

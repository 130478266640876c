// Package state holds the process-wide mutable state of the gaiachat server:
// the session map, the system prompt override and refreshable remote caches.
// Every holder is an explicit object injected into the services that use it.
package state

import (
	"sort"
	"sync"

	"gaiachat/pkg/gaiatypes"
)

// SessionStore maps session identifiers to conversation state.
// Sessions are kept for the lifetime of the process; there is no TTL or capacity bound.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*gaiatypes.Session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*gaiatypes.Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Get returns a copy of the session stored under id.
func (s *SessionStore) Get(id string) (*gaiatypes.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// Upsert stores a copy of session under id, replacing any previous value.
func (s *SessionStore) Upsert(id string, session *gaiatypes.Session) {
	if session == nil {
		return
	}
	cp := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = cp
}

// Lock acquires the per-session exclusion for id and returns its release func.
// Holders may read, modify and upsert the session without interleaving with
// another holder of the same id. Different ids never block each other.
func (s *SessionStore) Lock(id string) (unlock func()) {
	s.locksMu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the stored session identifiers in sorted order.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

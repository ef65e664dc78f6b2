// Package registry tracks live page sessions.
package registry

import (
	"errors"
	"sync"

	"media-augment-go/pkg/session"
	"media-augment-go/pkg/types"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// SessionRegistry holds sessions by id. When full, registering a new session
// closes and evicts the oldest one.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	order    []string
	max      int
}

// NewSessionRegistry creates a registry holding at most max sessions (0 means
// unbounded).
func NewSessionRegistry(max int) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session.Session),
		max:      max,
	}
}

// Register adds s and returns the session evicted to make room, if any.
func (r *SessionRegistry) Register(s *session.Session) *session.Session {
	r.mu.Lock()
	var evicted *session.Session
	if _, exists := r.sessions[s.ID]; !exists {
		if r.max > 0 && len(r.order) >= r.max {
			oldest := r.order[0]
			r.order = r.order[1:]
			evicted = r.sessions[oldest]
			delete(r.sessions, oldest)
		}
		r.order = append(r.order, s.ID)
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
	return evicted
}

// Get returns the session for id.
func (r *SessionRegistry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

// Remove closes and forgets the session for id.
func (r *SessionRegistry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		for i, sid := range r.order {
			if sid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// All returns the sessions in registration order.
func (r *SessionRegistry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*session.Session, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.sessions[id])
	}
	return result
}

// Infos summarizes every session.
func (r *SessionRegistry) Infos() []types.SessionInfo {
	all := r.All()
	infos := make([]types.SessionInfo, 0, len(all))
	for _, s := range all {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len returns the number of sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes all sessions.
func (r *SessionRegistry) Close() error {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*session.Session)
	r.order = nil
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	return nil
}

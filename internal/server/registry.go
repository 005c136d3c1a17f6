package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talkdrill/talkdrill/internal/dialogue"
	"github.com/talkdrill/talkdrill/internal/practice"
)

// ErrSessionNotFound is returned when a session id is unknown, expired, or
// already deleted.
var ErrSessionNotFound = errors.New("server: practice session not found")

// PracticeSession pairs a running engine session with the dialogue it
// practices, so handlers can render target sentences alongside verdicts.
type PracticeSession struct {
	ID      string
	Lines   []dialogue.Line
	Session *practice.Session

	// Mode is "typed" or "spoken"; recorded per attempt in metrics.
	Mode      string
	CreatedAt time.Time
}

// Registry is the in-memory practice session table, keyed by id. It is the
// only shared mutable state in the server; the engine sessions themselves
// handle their own locking.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*PracticeSession
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*PracticeSession)}
}

// Add stores sess under a fresh id and returns the registered entry.
func (r *Registry) Add(lines []dialogue.Line, sess *practice.Session, mode string) *PracticeSession {
	ps := &PracticeSession{
		ID:        uuid.NewString(),
		Lines:     lines,
		Session:   sess,
		Mode:      mode,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.sessions[ps.ID] = ps
	r.mu.Unlock()
	return ps
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*PracticeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ps, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ps, nil
}

// Remove deletes a session by id. Removing an unknown id is an error so
// callers can distinguish double deletes.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PruneOlderThan removes every session created before cutoff and returns how
// many were dropped. Abandoned sessions hold no external resources, so
// pruning is only about bounding the table.
func (r *Registry) PruneOlderThan(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, ps := range r.sessions {
		if ps.CreatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

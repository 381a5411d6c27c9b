package cart

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"bakerypos/backend/internal/domain"
)

type session struct {
	mu       sync.Mutex
	cart     *Cart
	lastUsed time.Time
}

// Registry owns one Cart per session id. Work on a session's cart runs under
// that session's lock, so each session has a single logical thread of control.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	idleTTL  time.Duration
	now      func() time.Time
}

func NewRegistry(idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 2 * time.Hour
	}
	return &Registry{
		sessions: make(map[string]*session),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (r *Registry) Open() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &session{cart: New(), lastUsed: r.now()}
	r.mu.Unlock()
	return id
}

// With runs fn with exclusive access to the session's cart.
func (r *Registry) With(id string, fn func(c *Cart) error) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// the session may have been swept or discarded while we waited
	r.mu.Lock()
	current, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || current != s {
		return domain.ErrNotFound
	}
	s.lastUsed = r.now()
	return fn(s.cart)
}

func (r *Registry) Discard(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Sweep drops sessions idle for longer than the TTL and returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

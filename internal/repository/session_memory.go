package repository

import (
	"context"
	"sync"
	"time"

	"github.com/yourorg/gatekeeper/internal/domain"
)

// MemorySessionRepository keeps sessions in process memory. Single-instance
// only; contents are lost on restart. Expired records are deleted lazily on
// read, so no background sweep is required for correctness. Sweep exists
// purely to reclaim memory for sessions nobody reads again.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *MemorySessionRepository) WithClock(now func() time.Time) *MemorySessionRepository {
	r.now = now
	return r
}

func (r *MemorySessionRepository) Create(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Expired(r.now()) {
		delete(r.sessions, id)
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

// Touch updates last_activity only; expires_at never moves.
func (r *MemorySessionRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Expired(r.now()) {
		delete(r.sessions, id)
		return domain.ErrSessionNotFound
	}
	session.LastActivity = at
	return nil
}

func (r *MemorySessionRepository) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) ListByUsername(_ context.Context, username string) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var sessions []*domain.Session
	for _, session := range r.sessions {
		if session.Username == username && !session.Expired(now) {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	return sessions, nil
}

func (r *MemorySessionRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	count := 0
	for _, session := range r.sessions {
		if !session.Expired(now) {
			count++
		}
	}
	return count, nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (r *MemorySessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for id, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

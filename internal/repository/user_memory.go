package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/gatekeeper/internal/domain"
)

// MemoryUserRepository is an in-process user directory. Single-instance
// only; useful for development and tests. All mutations are serialized by
// one mutex, which makes the failure-counter increment atomic.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]*domain.User
	byEmail    map[string]*domain.User
	now        func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[string]*domain.User),
		byUsername: make(map[string]*domain.User),
		byEmail:    make(map[string]*domain.User),
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *MemoryUserRepository) WithClock(now func() time.Time) *MemoryUserRepository {
	r.now = now
	return r
}

func copyUser(u *domain.User) *domain.User {
	copied := *u
	copied.Permissions = make([]domain.Permission, len(u.Permissions))
	copy(copied.Permissions, u.Permissions)
	if u.LastLogin != nil {
		t := *u.LastLogin
		copied.LastLogin = &t
	}
	return &copied
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[user.Username]; exists {
		return domain.ErrDuplicateUsername
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return domain.ErrDuplicateEmail
	}
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.PasswordChangedAt.IsZero() {
		user.PasswordChangedAt = now
	}
	stored := copyUser(user)
	r.byID[user.ID] = stored
	r.byUsername[user.Username] = stored
	r.byEmail[user.Email] = stored
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byUsername[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]*domain.User, 0, len(r.byID))
	for _, user := range r.byID {
		users = append(users, copyUser(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Update replaces the stored record identified by ID. Username is immutable
// after creation; the email index follows email changes.
func (r *MemoryUserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if user.Email != current.Email {
		if _, exists := r.byEmail[user.Email]; exists {
			return domain.ErrDuplicateEmail
		}
		delete(r.byEmail, current.Email)
	}
	user.Username = current.Username
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = r.now()
	stored := copyUser(user)
	r.byID[user.ID] = stored
	r.byUsername[stored.Username] = stored
	r.byEmail[stored.Email] = stored
	return nil
}

func (r *MemoryUserRepository) UpdateStatus(_ context.Context, username string, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byUsername[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Status = status
	user.UpdatedAt = r.now()
	return nil
}

// RecordLoginFailure increments the failure counter atomically and returns
// the new value.
func (r *MemoryUserRepository) RecordLoginFailure(_ context.Context, username string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byUsername[username]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	user.FailedLoginAttempts++
	user.UpdatedAt = r.now()
	return user.FailedLoginAttempts, nil
}

func (r *MemoryUserRepository) RecordLoginSuccess(_ context.Context, username string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byUsername[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.FailedLoginAttempts = 0
	user.LoginCount++
	t := at
	user.LastLogin = &t
	user.UpdatedAt = r.now()
	return nil
}

func (r *MemoryUserRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

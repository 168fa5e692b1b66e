package user

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryUserRepository implements UserRepository using in-memory storage
type InMemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]User
	byName map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:  make(map[uuid.UUID]User),
		byName: make(map[string]uuid.UUID),
	}
}

func clone(u User) User {
	u.Roles = slices.Clone(u.Roles)
	u.PasswordHash = slices.Clone(u.PasswordHash)
	return u
}

func (r *InMemoryUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return clone(u), nil
}

func (r *InMemoryUserRepository) GetUserByName(ctx context.Context, normalizedName string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[normalizedName]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return clone(r.users[id]), nil
}

func (r *InMemoryUserRepository) CreateUser(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := NormalizeUserName(u.UserName)
	if _, exists := r.byName[key]; exists {
		return User{}, ErrUserAlreadyExists
	}
	r.users[u.ID] = clone(u)
	r.byName[key] = u.ID
	return clone(u), nil
}

func (r *InMemoryUserRepository) AddUserRole(ctx context.Context, id uuid.UUID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if !slices.ContainsFunc(u.Roles, func(existing string) bool { return strings.EqualFold(existing, role) }) {
		u.Roles = append(u.Roles, role)
	}
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return nil
}

func (r *InMemoryUserRepository) SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	return r.update(id, func(u *User) { u.Roles = slices.Clone(roles) })
}

func (r *InMemoryUserRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	return r.update(id, func(u *User) { u.IsBlocked = blocked })
}

func (r *InMemoryUserRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.update(id, func(u *User) {
		u.FailedAttempts++
		attempts = u.FailedAttempts
	})
	return attempts, err
}

func (r *InMemoryUserRepository) LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error {
	return r.update(id, func(u *User) { u.LockedUntil = until })
}

func (r *InMemoryUserRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(u *User) {
		u.FailedAttempts = 0
		u.LockedUntil = time.Time{}
	})
}

func (r *InMemoryUserRepository) update(id uuid.UUID, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return nil
}

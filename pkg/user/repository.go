package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists local accounts
type UserRepository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByName(ctx context.Context, normalizedName string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	AddUserRole(ctx context.Context, id uuid.UUID, role string) error
	SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error

	IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID) (int, error)
	LockAccount(ctx context.Context, id uuid.UUID, until time.Time) error
	ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error
}

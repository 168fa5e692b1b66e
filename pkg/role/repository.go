package role

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyRoleName = errors.New("role name cannot be empty")
	ErrRoleNotFound  = errors.New("role not found")
)

// Role is a role name together with its packed permissions
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Permissions string    `json:"permissions"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleRepository persists role permission records
type RoleRepository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	// FindByName returns every record whose name matches case-insensitively
	FindByName(ctx context.Context, name string) ([]Role, error)
	UpsertRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, name string) error
}

package role

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRoleRepository implements RoleRepository using in-memory storage
type InMemoryRoleRepository struct {
	mu    sync.RWMutex
	roles map[string]Role // exact name -> role
}

func NewInMemoryRoleRepository() *InMemoryRoleRepository {
	return &InMemoryRoleRepository{
		roles: make(map[string]Role),
	}
}

func (r *InMemoryRoleRepository) ListRoles(ctx context.Context) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r *InMemoryRoleRepository) FindByName(ctx context.Context, name string) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Role
	for _, role := range r.roles {
		if strings.EqualFold(role.Name, name) {
			matches = append(matches, role)
		}
	}
	return matches, nil
}

func (r *InMemoryRoleRepository) UpsertRole(ctx context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.roles[role.Name]; ok {
		role.ID = existing.ID
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	role.UpdatedAt = time.Now().UTC()
	r.roles[role.Name] = role
	return role, nil
}

func (r *InMemoryRoleRepository) DeleteRole(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// DELETE is idempotent
	delete(r.roles, name)
	return nil
}

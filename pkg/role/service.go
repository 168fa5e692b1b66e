package role

import (
	"context"
	"log/slog"
	"strings"
)

// RoleService resolves permissions for role names
type RoleService struct {
	repo RoleRepository
}

func NewRoleService(repo RoleRepository) *RoleService {
	return &RoleService{repo: repo}
}

func (s *RoleService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// SetPermissions creates or replaces the permission record of a role
func (s *RoleService) SetPermissions(ctx context.Context, name string, perms []Permission) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrEmptyRoleName
	}
	return s.repo.UpsertRole(ctx, Role{Name: name, Permissions: Pack(perms)})
}

func (s *RoleService) DeleteRole(ctx context.Context, name string) error {
	return s.repo.DeleteRole(ctx, name)
}

// PermissionsFor returns the packed permissions of roleName.
// An exact-case match wins over a case-insensitive one; no match yields PermissionsNotSet.
func (s *RoleService) PermissionsFor(ctx context.Context, roleName string) (string, error) {
	if strings.TrimSpace(roleName) == "" {
		return PermissionsNotSet, nil
	}
	matches, err := s.repo.FindByName(ctx, roleName)
	if err != nil {
		return "", err
	}

	var best *Role
	for i := range matches {
		m := &matches[i]
		switch {
		case best == nil:
			best = m
		case m.Name == roleName && best.Name != roleName:
			best = m
		case (m.Name == roleName) == (best.Name == roleName) && m.UpdatedAt.After(best.UpdatedAt):
			best = m
		}
	}
	if best == nil {
		slog.Debug("No permissions configured for role", "role", roleName)
		return PermissionsNotSet, nil
	}
	return best.Permissions, nil
}

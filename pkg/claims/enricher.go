package claims

import (
	"context"
	"fmt"
)

// PermissionResolver maps a role name to its packed permissions
type PermissionResolver interface {
	PermissionsFor(ctx context.Context, roleName string) (string, error)
}

// PermissionsEnricher adds the packed permissions of the first role claim
type PermissionsEnricher struct {
	resolver PermissionResolver
}

func NewPermissionsEnricher(resolver PermissionResolver) *PermissionsEnricher {
	return &PermissionsEnricher{resolver: resolver}
}

func (e *PermissionsEnricher) Enrich(ctx context.Context, set *Set) error {
	roleName, _ := set.Get(TypeRole)
	packed, err := e.resolver.PermissionsFor(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to resolve permissions for role %q: %w", roleName, err)
	}
	set.Replace(TypePermissions, packed)
	return nil
}

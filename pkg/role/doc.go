// Package role stores the packed permission strings attached to role names.
//
// Tokens carry a "permissions" claim resolved from the user's role through
// Service.PermissionsFor. A role without a permission record resolves to
// PermissionsNotSet.
//
//	repo := role.NewInMemoryRoleRepository()
//	service := role.NewRoleService(repo)
//	_ = service.SetPermissions(ctx, "provider", []role.Permission{role.PermissionWorkshopEdit})
//	packed, _ := service.PermissionsFor(ctx, "provider")
package role

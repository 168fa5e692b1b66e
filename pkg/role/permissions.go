package role

import (
	"fmt"
	"strconv"
	"strings"
)

// Permission is a single platform permission code
type Permission uint16

const (
	PermissionNotSet         Permission = 0
	PermissionImpersonate    Permission = 1
	PermissionProviderRead   Permission = 10
	PermissionProviderEdit   Permission = 11
	PermissionWorkshopRead   Permission = 20
	PermissionWorkshopEdit   Permission = 21
	PermissionApplicationAdd Permission = 30
	PermissionChildAdd       Permission = 40
	PermissionSystemManage   Permission = 100
)

const permissionSeparator = "."

// PermissionsNotSet is the packed value for a role without a permission record
var PermissionsNotSet = Pack([]Permission{PermissionNotSet})

// Pack encodes permissions in the form carried by the permissions claim
func Pack(perms []Permission) string {
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, permissionSeparator)
}

func Unpack(packed string) ([]Permission, error) {
	if packed == "" {
		return nil, nil
	}
	parts := strings.Split(packed, permissionSeparator)
	perms := make([]Permission, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid permission %q: %w", part, err)
		}
		perms = append(perms, Permission(v))
	}
	return perms, nil
}

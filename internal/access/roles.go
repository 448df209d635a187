package access

import (
	"slices"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

// implied maps a role to the subordinate roles whose capabilities it includes.
var implied = map[auth.Role][]auth.Role{
	auth.RoleAdmin:      {auth.RoleStaff},
	auth.RoleSuperAdmin: {auth.RoleAdmin},
}

// rolePermissions lists the permissions granted directly by each role.
// Permissions reached through implied roles are added by PermissionsFor.
var rolePermissions = map[auth.Role][]auth.Permission{
	auth.RoleCustomer: {
		auth.PermProfileView,
		auth.PermProfileUpdate,
		auth.PermOrdersView,
		auth.PermOrdersCreate,
	},
	auth.RoleRider: {
		auth.PermProfileView,
		auth.PermProfileUpdate,
		auth.PermDeliveriesView,
		auth.PermDeliveriesUpdate,
	},
	auth.RoleStaff: {
		auth.PermProfileView,
		auth.PermProfileUpdate,
		auth.PermOrdersView,
		auth.PermOrdersManage,
		auth.PermMenuManage,
	},
	auth.RoleAdmin: {
		auth.PermReportsView,
		auth.PermAdminManage,
	},
	auth.RoleSuperAdmin: {
		auth.PermSystemConfigure,
	},
}

// ExpandRoles returns roles plus every role they imply, without duplicates.
// The result is in privilege order. Unknown roles are dropped.
func ExpandRoles(roles []auth.Role) []auth.Role {
	seen := make(map[auth.Role]bool, len(roles))
	var visit func(r auth.Role)
	visit = func(r auth.Role) {
		if seen[r] {
			return
		}
		seen[r] = true
		for _, sub := range implied[r] {
			visit(sub)
		}
	}
	for _, r := range roles {
		visit(r)
	}

	out := make([]auth.Role, 0, len(seen))
	for _, r := range auth.Roles {
		if seen[r] {
			out = append(out, r)
		}
	}
	return out
}

// PermissionsFor returns the flattened union of permissions granted by roles,
// including roles they imply. Unknown roles grant nothing.
func PermissionsFor(roles []auth.Role) []auth.Permission {
	granted := make(map[auth.Permission]bool)
	for _, r := range ExpandRoles(roles) {
		for _, p := range rolePermissions[r] {
			granted[p] = true
		}
	}
	return orderPermissions(granted, nil)
}

// Resolve returns a copy of user with implied roles added and permissions
// widened to the union of explicit and role-derived permissions.
func Resolve(user auth.User) auth.User {
	user.Roles = ExpandRoles(user.Roles)

	granted := make(map[auth.Permission]bool, len(user.Permissions))
	for _, p := range user.Permissions {
		granted[p] = true
	}
	for _, p := range PermissionsFor(user.Roles) {
		granted[p] = true
	}
	user.Permissions = orderPermissions(granted, user.Permissions)
	return user
}

// orderPermissions returns the keys of granted in catalogue order, followed by
// unknown permissions in the order they appear in extra.
func orderPermissions(granted map[auth.Permission]bool, extra []auth.Permission) []auth.Permission {
	out := make([]auth.Permission, 0, len(granted))
	for _, p := range auth.Permissions {
		if granted[p] {
			out = append(out, p)
		}
	}
	for _, p := range extra {
		if !slices.Contains(auth.Permissions, p) && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

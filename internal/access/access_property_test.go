package access

import (
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

func genRoles() *rapid.Generator[[]auth.Role] {
	return rapid.SliceOfDistinct(rapid.SampledFrom(auth.Roles), func(r auth.Role) auth.Role { return r })
}

func genPermissions() *rapid.Generator[[]auth.Permission] {
	return rapid.SliceOfDistinct(rapid.SampledFrom(auth.Permissions), func(p auth.Permission) auth.Permission { return p })
}

func genUser() *rapid.Generator[*auth.User] {
	return rapid.Custom(func(t *rapid.T) *auth.User {
		if rapid.Bool().Draw(t, "anonymous") {
			return nil
		}
		return &auth.User{
			ID:          rapid.StringMatching(`u-[0-9]{1,6}`).Draw(t, "id"),
			Roles:       genRoles().Draw(t, "roles"),
			Permissions: genPermissions().Draw(t, "permissions"),
		}
	})
}

func genOperator() *rapid.Generator[Operator] {
	return rapid.SampledFrom([]Operator{OperatorOr, OperatorAnd, ""})
}

// TestUserCanAccess_EmptyRequirementAlwaysGrants checks the permissive default
func TestUserCanAccess_EmptyRequirementAlwaysGrants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		user := genUser().Draw(t, "user")
		req := Requirement{
			RoleOperator:       genOperator().Draw(t, "role_op"),
			PermissionOperator: genOperator().Draw(t, "perm_op"),
		}
		if !UserCanAccess(user, req) {
			t.Fatalf("empty requirement denied %+v", user)
		}
	})
}

// TestUserCanAccess_AnonymousDeniedWhenRolesRequired checks nil users never pass role checks
func TestUserCanAccess_AnonymousDeniedWhenRolesRequired(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roles := rapid.SliceOfNDistinct(rapid.SampledFrom(auth.Roles), 1, -1, func(r auth.Role) auth.Role { return r }).Draw(t, "roles")
		req := Requirement{Roles: roles, RoleOperator: genOperator().Draw(t, "op")}
		if UserCanAccess(nil, req) {
			t.Fatalf("anonymous user granted %v", req)
		}
	})
}

// TestUserCanAccess_AndImpliesOr checks that passing with "and" always passes with "or"
func TestUserCanAccess_AndImpliesOr(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		user := genUser().Draw(t, "user")
		roles := genRoles().Draw(t, "required_roles")
		perms := genPermissions().Draw(t, "required_permissions")

		and := Requirement{Roles: roles, Permissions: perms, RoleOperator: OperatorAnd, PermissionOperator: OperatorAnd}
		or := Requirement{Roles: roles, Permissions: perms, RoleOperator: OperatorOr, PermissionOperator: OperatorOr}

		if UserCanAccess(user, and) && !UserCanAccess(user, or) {
			t.Fatalf("user %+v passes %v but fails %v", user, and, or)
		}
	})
}

// TestResolve_IsIdempotentAndWidening checks normalisation never drops capabilities
func TestResolve_IsIdempotentAndWidening(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		user := auth.User{
			ID:          "u",
			Roles:       genRoles().Draw(t, "roles"),
			Permissions: genPermissions().Draw(t, "permissions"),
		}

		once := Resolve(user)
		twice := Resolve(once)

		if !slices.Equal(once.Roles, twice.Roles) || !slices.Equal(once.Permissions, twice.Permissions) {
			t.Fatalf("Resolve not idempotent: %v / %v", once, twice)
		}
		for _, r := range user.Roles {
			if !slices.Contains(once.Roles, r) {
				t.Fatalf("role %s dropped", r)
			}
		}
		for _, p := range user.Permissions {
			if !slices.Contains(once.Permissions, p) {
				t.Fatalf("permission %s dropped", p)
			}
		}
		for _, p := range PermissionsFor(user.Roles) {
			if !slices.Contains(once.Permissions, p) {
				t.Fatalf("role-derived permission %s missing", p)
			}
		}
	})
}

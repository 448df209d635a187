package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

func userWith(roles []auth.Role, perms ...auth.Permission) *auth.User {
	return &auth.User{ID: "u-1", Email: "u@example.com", Roles: roles, Permissions: perms}
}

func TestUserCanAccess(t *testing.T) {
	staff := userWith([]auth.Role{auth.RoleStaff}, auth.PermOrdersManage, auth.PermMenuManage)

	tests := []struct {
		name string
		user *auth.User
		req  Requirement
		want bool
	}{
		{
			name: "empty requirement grants anonymous",
			user: nil,
			req:  Requirement{},
			want: true,
		},
		{
			name: "empty slices grant anonymous",
			user: nil,
			req:  Requirement{Roles: []auth.Role{}, Permissions: []auth.Permission{}},
			want: true,
		},
		{
			name: "anonymous denied when roles required",
			user: nil,
			req:  Requirement{Roles: []auth.Role{auth.RoleAdmin}},
			want: false,
		},
		{
			name: "anonymous denied when permissions required",
			user: nil,
			req:  Requirement{Permissions: []auth.Permission{auth.PermOrdersView}},
			want: false,
		},
		{
			name: "and operator needs every role",
			user: staff,
			req:  Requirement{Roles: []auth.Role{auth.RoleStaff, auth.RoleAdmin}, RoleOperator: OperatorAnd},
			want: false,
		},
		{
			name: "or operator needs one role",
			user: staff,
			req:  Requirement{Roles: []auth.Role{auth.RoleStaff, auth.RoleAdmin}, RoleOperator: OperatorOr},
			want: true,
		},
		{
			name: "default operator is or",
			user: staff,
			req:  Requirement{Roles: []auth.Role{auth.RoleAdmin, auth.RoleStaff}},
			want: true,
		},
		{
			name: "permission and operator",
			user: staff,
			req:  AllPermissions(auth.PermOrdersManage, auth.PermMenuManage),
			want: true,
		},
		{
			name: "permission and operator missing one",
			user: staff,
			req:  AllPermissions(auth.PermOrdersManage, auth.PermAdminManage),
			want: false,
		},
		{
			name: "role passes but permission fails",
			user: staff,
			req: Requirement{
				Roles:       []auth.Role{auth.RoleStaff},
				Permissions: []auth.Permission{auth.PermReportsView},
			},
			want: false,
		},
		{
			name: "permission passes but role fails",
			user: staff,
			req: Requirement{
				Roles:       []auth.Role{auth.RoleRider},
				Permissions: []auth.Permission{auth.PermOrdersManage},
			},
			want: false,
		},
		{
			name: "both pass",
			user: staff,
			req: Requirement{
				Roles:       []auth.Role{auth.RoleStaff},
				Permissions: []auth.Permission{auth.PermOrdersManage},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserCanAccess(tt.user, tt.req))
		})
	}
}

func TestParseOperator(t *testing.T) {
	for in, want := range map[string]Operator{"": OperatorOr, "or": OperatorOr, "ANY": OperatorOr, "and": OperatorAnd, "all": OperatorAnd} {
		got, err := ParseOperator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOperator("xor")
	assert.Error(t, err)
}

func TestRequirement_String(t *testing.T) {
	assert.Equal(t, "none", Requirement{}.String())
	assert.Equal(t, "roles or [customer]", AnyRole(auth.RoleCustomer).String())
	assert.Equal(t,
		"roles or [staff]; permissions and [orders:manage]",
		Requirement{Roles: []auth.Role{auth.RoleStaff}, Permissions: []auth.Permission{auth.PermOrdersManage}, PermissionOperator: OperatorAnd}.String(),
	)
}

func TestResolve_AdminLogin(t *testing.T) {
	resolved := Resolve(auth.User{ID: "u-9", Roles: []auth.Role{auth.RoleAdmin}})

	assert.ElementsMatch(t, []auth.Role{auth.RoleAdmin, auth.RoleStaff}, resolved.Roles)
	assert.Contains(t, resolved.Permissions, auth.PermAdminManage)
	assert.Contains(t, resolved.Permissions, auth.PermOrdersManage)
	assert.Contains(t, resolved.Permissions, auth.PermMenuManage)
	assert.NotContains(t, resolved.Permissions, auth.PermSystemConfigure)

	assert.True(t, UserCanAccess(&resolved, Requirement{
		Roles:        []auth.Role{auth.RoleStaff, auth.RoleAdmin},
		RoleOperator: OperatorAnd,
	}))
}

func TestResolve_KeepsExplicitPermissions(t *testing.T) {
	in := auth.User{
		ID:          "u-2",
		Roles:       []auth.Role{auth.RoleCustomer},
		Permissions: []auth.Permission{auth.PermReportsView, "beta:menu"},
	}

	out := Resolve(in)

	assert.Contains(t, out.Permissions, auth.PermReportsView)
	assert.Contains(t, out.Permissions, auth.Permission("beta:menu"))
	assert.Contains(t, out.Permissions, auth.PermOrdersCreate)
	assert.Equal(t, []auth.Permission{auth.PermReportsView, "beta:menu"}, in.Permissions, "input must not be mutated")
}

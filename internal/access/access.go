// Package access decides whether a user satisfies a set of role and
// permission requirements.
//
// Everything here is pure: no I/O, no clocks, no shared state. The session
// store uses Resolve to normalise every profile it accepts, and the route
// guards call UserCanAccess on each request.
package access

import (
	"fmt"
	"slices"
	"strings"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

// Operator combines individual role or permission checks.
type Operator string

const (
	// OperatorOr passes when at least one requirement is met. It is the default.
	OperatorOr Operator = "or"
	// OperatorAnd passes only when every requirement is met.
	OperatorAnd Operator = "and"
)

// ParseOperator parses "or"/"and"; the empty string is OperatorOr.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "or", "any":
		return OperatorOr, nil
	case "and", "all":
		return OperatorAnd, nil
	default:
		return "", fmt.Errorf("unknown operator %q (want \"or\" or \"and\")", s)
	}
}

// Requirement describes what a user must hold to access something.
type Requirement struct {
	Roles              []auth.Role
	Permissions        []auth.Permission
	RoleOperator       Operator
	PermissionOperator Operator
}

// Empty reports whether the requirement asks for nothing.
func (r Requirement) Empty() bool {
	return len(r.Roles) == 0 && len(r.Permissions) == 0
}

// String renders the requirement for logs.
func (r Requirement) String() string {
	if r.Empty() {
		return "none"
	}
	var parts []string
	if len(r.Roles) > 0 {
		parts = append(parts, fmt.Sprintf("roles %s %v", opOrDefault(r.RoleOperator), r.Roles))
	}
	if len(r.Permissions) > 0 {
		parts = append(parts, fmt.Sprintf("permissions %s %v", opOrDefault(r.PermissionOperator), r.Permissions))
	}
	return strings.Join(parts, "; ")
}

// AnyRole builds a requirement satisfied by any of roles.
func AnyRole(roles ...auth.Role) Requirement {
	return Requirement{Roles: roles, RoleOperator: OperatorOr}
}

// AllPermissions builds a requirement satisfied only by holding every permission.
func AllPermissions(perms ...auth.Permission) Requirement {
	return Requirement{Permissions: perms, PermissionOperator: OperatorAnd}
}

// UserCanAccess reports whether user satisfies req.
//
// An empty requirement grants access to everyone, including a nil user, so
// that callers can use it for conditional rendering. Otherwise a nil user is
// denied. The role check and the permission check are evaluated
// independently and both must pass.
func UserCanAccess(user *auth.User, req Requirement) bool {
	if req.Empty() {
		return true
	}
	if user == nil {
		return false
	}
	return matches(user.Roles, req.Roles, req.RoleOperator) &&
		matches(user.Permissions, req.Permissions, req.PermissionOperator)
}

func matches[T comparable](held, required []T, op Operator) bool {
	if len(required) == 0 {
		return true
	}
	if opOrDefault(op) == OperatorAnd {
		for _, r := range required {
			if !slices.Contains(held, r) {
				return false
			}
		}
		return true
	}
	for _, r := range required {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

func opOrDefault(op Operator) Operator {
	if op == OperatorAnd {
		return OperatorAnd
	}
	return OperatorOr
}

// Package auth defines the storefront identity model shared by the session
// store, the backend gateway and the access evaluator.
//
// A signed-in visitor is described by a Tokens value (the session issued by the
// backend) and a User profile. The backend returns both together as a Payload
// from every identity-establishing endpoint, and the same shape is what gets
// persisted to client storage.
package auth

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role is a coarse-grained identity category.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRider      Role = "rider"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Roles lists every known role from least to most privileged.
var Roles = []Role{RoleCustomer, RoleRider, RoleStaff, RoleAdmin, RoleSuperAdmin}

// ParseRole converts a string into a known Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Roles, r) {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// Permission is a fine-grained capability string of the form "area:action".
type Permission string

const (
	PermProfileView      Permission = "profile:view"
	PermProfileUpdate    Permission = "profile:update"
	PermOrdersView       Permission = "orders:view"
	PermOrdersCreate     Permission = "orders:create"
	PermOrdersManage     Permission = "orders:manage"
	PermDeliveriesView   Permission = "deliveries:view"
	PermDeliveriesUpdate Permission = "deliveries:update"
	PermMenuManage       Permission = "menu:manage"
	PermReportsView      Permission = "reports:view"
	PermAdminManage      Permission = "admin:manage"
	PermSystemConfigure  Permission = "system:configure"
)

// Permissions lists every known permission.
var Permissions = []Permission{
	PermProfileView,
	PermProfileUpdate,
	PermOrdersView,
	PermOrdersCreate,
	PermOrdersManage,
	PermDeliveriesView,
	PermDeliveriesUpdate,
	PermMenuManage,
	PermReportsView,
	PermAdminManage,
	PermSystemConfigure,
}

// ParsePermission converts a string into a known Permission.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Permissions, p) {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// String returns the permission string.
func (p Permission) String() string {
	return string(p)
}

// Tokens is the session issued by the backend.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

// ExpiresWithin reports whether the access token expires within d of now.
// A zero ExpiresAt is treated as unknown and never expiring.
func (t Tokens) ExpiresWithin(d time.Duration, now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.Add(d).After(t.ExpiresAt)
}

// CanRefresh reports whether a refresh token is available.
func (t Tokens) CanRefresh() bool {
	return t.RefreshToken != ""
}

// Preferences holds user-selected presentation settings.
type Preferences struct {
	Theme         string `json:"theme,omitempty"`
	Notifications *bool  `json:"notifications,omitempty"`
	Language      string `json:"language,omitempty"`
}

// Coupon is a loyalty reward available to the user.
type Coupon struct {
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
}

// User is the profile of the signed-in user.
type User struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	FullName         string       `json:"fullName"`
	Phone            *string      `json:"phone,omitempty"`
	AvatarURL        string       `json:"avatarUrl,omitempty"`
	Roles            []Role       `json:"roles"`
	Permissions      []Permission `json:"permissions"`
	LoyaltyPoints    int          `json:"loyaltyPoints"`
	AvailableCoupons []Coupon     `json:"availableCoupons,omitempty"`
	Preferences      Preferences  `json:"preferences"`
	TwoFactorEnabled bool         `json:"twoFactorEnabled"`
	CreatedAt        time.Time    `json:"createdAt,omitzero"`
	UpdatedAt        time.Time    `json:"updatedAt,omitzero"`
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role Role) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// HasPermission reports whether the user holds permission.
func (u *User) HasPermission(perm Permission) bool {
	return u != nil && slices.Contains(u.Permissions, perm)
}

// Payload is the {session, user} pair returned by login, refresh, OAuth
// completion, "who am I" and every profile mutation.
type Payload struct {
	Session Tokens `json:"session"`
	User    User   `json:"user"`
}

// Validate checks that the payload carries a usable session.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("empty auth payload")
	}
	if p.Session.AccessToken == "" {
		return fmt.Errorf("auth payload has no access token")
	}
	if p.User.ID == "" {
		return fmt.Errorf("auth payload has no user id")
	}
	if len(p.User.Roles) == 0 {
		return fmt.Errorf("auth payload user %s has no roles", p.User.ID)
	}
	for _, r := range p.User.Roles {
		if !slices.Contains(Roles, r) {
			return fmt.Errorf("auth payload user %s has unknown role %q", p.User.ID, r)
		}
	}
	return nil
}

// OrderSummary is a compact view of a past order.
type OrderSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	Currency  string    `json:"currency,omitempty"`
	ItemCount int       `json:"itemCount"`
	PlacedAt  time.Time `json:"placedAt,omitzero"`
}

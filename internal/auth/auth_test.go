package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "customer", want: RoleCustomer},
		{in: " Admin ", want: RoleAdmin},
		{in: "SUPERADMIN", want: RoleSuperAdmin},
		{in: "chef", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("orders:manage")
	require.NoError(t, err)
	assert.Equal(t, PermOrdersManage, p)

	_, err = ParsePermission("orders:delete")
	assert.Error(t, err)
}

func TestTokens_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("zero expiry never expires", func(t *testing.T) {
		tok := Tokens{AccessToken: "a"}
		assert.False(t, tok.ExpiresWithin(time.Hour, now))
	})

	t.Run("past expiry", func(t *testing.T) {
		tok := Tokens{AccessToken: "a", ExpiresAt: now.Add(-time.Second)}
		assert.True(t, tok.ExpiresWithin(0, now))
	})

	t.Run("expires soon", func(t *testing.T) {
		tok := Tokens{AccessToken: "a", ExpiresAt: now.Add(30 * time.Second)}
		assert.False(t, tok.ExpiresWithin(0, now))
		assert.True(t, tok.ExpiresWithin(time.Minute, now))
		assert.False(t, tok.ExpiresWithin(10*time.Second, now))
	})
}

func TestExpiryFromAccessToken(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	assert.True(t, exp.Equal(ExpiryFromAccessToken(signed)))
	assert.True(t, ExpiryFromAccessToken("opaque-token").IsZero())

	normalized := Tokens{AccessToken: signed}.Normalize()
	assert.True(t, exp.Equal(normalized.ExpiresAt))

	explicit := time.Now().Add(time.Hour)
	kept := Tokens{AccessToken: signed, ExpiresAt: explicit}.Normalize()
	assert.Equal(t, explicit, kept.ExpiresAt)
}

func TestParseAccessToken_Malformed(t *testing.T) {
	_, err := ParseAccessToken("not.a.jwt")
	require.Error(t, err)
	assert.True(t, IsAuthError(err, ErrTokenMalformed))
}

func TestPayload_Validate(t *testing.T) {
	var nilPayload *Payload
	assert.Error(t, nilPayload.Validate())
	assert.Error(t, (&Payload{User: User{ID: "u"}}).Validate())
	assert.Error(t, (&Payload{Session: Tokens{AccessToken: "a"}}).Validate())
	assert.NoError(t, (&Payload{Session: Tokens{AccessToken: "a"}, User: User{ID: "u", Roles: []Role{RoleCustomer}}}).Validate())

	t.Run("roles", func(t *testing.T) {
		tests := []struct {
			name  string
			roles []Role
		}{
			{"none", nil},
			{"empty", []Role{}},
			{"unknown", []Role{RoleCustomer, "partner"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := &Payload{Session: Tokens{AccessToken: "a"}, User: User{ID: "u", Roles: tt.roles}}
				assert.Error(t, p.Validate())
			})
		}
	})
}

func TestUser_HasRoleAndPermission(t *testing.T) {
	u := &User{Roles: []Role{RoleRider}, Permissions: []Permission{PermDeliveriesView}}
	assert.True(t, u.HasRole(RoleRider))
	assert.False(t, u.HasRole(RoleAdmin))
	assert.True(t, u.HasPermission(PermDeliveriesView))

	var anonymous *User
	assert.False(t, anonymous.HasRole(RoleCustomer))
	assert.False(t, anonymous.HasPermission(PermOrdersView))
}

func TestAuthError(t *testing.T) {
	cause := errors.New("401 from backend: bad password for a@b.c")
	err := WrapError(ErrInvalidCredentials, MsgInvalidCredentials, cause, map[string]interface{}{"email": "a@b.c"})

	assert.Contains(t, err.Error(), ErrInvalidCredentials)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrInvalidCredentials, err.ErrorCode())
	assert.True(t, IsAuthError(err, ErrInvalidCredentials))
	assert.False(t, IsAuthError(err, ErrSessionExpired))
	assert.False(t, IsAuthError(cause, ErrInvalidCredentials))

	t.Run("user message hides cause", func(t *testing.T) {
		assert.Equal(t, MsgInvalidCredentials, UserMessage(err))
		assert.NotContains(t, UserMessage(err), "bad password")
		assert.Equal(t, "Something went wrong. Please try again.", UserMessage(cause))
		assert.Empty(t, UserMessage(nil))
	})
}

package gateway

import (
	"context"
	"net/http"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

// Backend endpoint paths, relative to the base URL.
const (
	EndpointLogin          = "auth/login"
	EndpointOAuthStart     = "auth/google/start"
	EndpointOAuthComplete  = "auth/google/complete"
	EndpointLogout         = "auth/logout"
	EndpointRefresh        = "auth/refresh"
	EndpointMe             = "auth/me"
	EndpointProfile        = "users/profile"
	EndpointPreferences    = "users/preferences"
	EndpointSecurity       = "users/security"
	EndpointOrderSummaries = "customers/orders/summary"
)

// LoginRequest is the email sign-in body.
type LoginRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role,omitempty"`
}

// OAuthStartRequest asks the backend for a provider authorization URL.
type OAuthStartRequest struct {
	Role        auth.Role `json:"role,omitempty"`
	RedirectURI string    `json:"redirectUri"`
	State       string    `json:"state,omitempty"`
}

// OAuthStartResponse carries the provider URL to navigate to.
type OAuthStartResponse struct {
	URL string `json:"url"`
}

// OAuthCompleteRequest exchanges an authorization code for a session.
type OAuthCompleteRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// RefreshRequest trades a refresh token for a new session.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ProfileUpdate changes profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName  *string `json:"fullName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// PreferencesUpdate changes preferences. Nil fields are left unchanged.
type PreferencesUpdate struct {
	Theme         *string `json:"theme,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	Language      *string `json:"language,omitempty"`
}

// SecurityUpdate toggles two-factor authentication.
type SecurityUpdate struct {
	EnableTwoFactor  *bool `json:"enableTwoFactor,omitempty"`
	DisableTwoFactor *bool `json:"disableTwoFactor,omitempty"`
}

func (c *Client) payload(ctx context.Context, authenticated bool, method, endpoint string, in any) (*auth.Payload, error) {
	var out auth.Payload
	if err := c.call(ctx, authenticated, method, endpoint, in, &out); err != nil {
		return nil, err
	}
	out.Session = out.Session.Normalize()
	if err := out.Validate(); err != nil {
		return nil, auth.WrapError(auth.ErrTokenMalformed, "backend returned an unusable session", err,
			map[string]interface{}{"endpoint": endpoint})
	}
	return &out, nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*auth.Payload, error) {
	return c.payload(ctx, false, http.MethodPost, EndpointLogin, req)
}

// StartOAuth returns the provider URL for the redirect flow.
func (c *Client) StartOAuth(ctx context.Context, req OAuthStartRequest) (string, error) {
	var out OAuthStartResponse
	if err := c.call(ctx, false, http.MethodPost, EndpointOAuthStart, req, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", auth.NewError(auth.ErrOAuthStartFailed, auth.MsgOAuthFailed, nil)
	}
	return out.URL, nil
}

// CompleteOAuth exchanges the callback code for a session.
func (c *Client) CompleteOAuth(ctx context.Context, req OAuthCompleteRequest) (*auth.Payload, error) {
	return c.payload(ctx, false, http.MethodPost, EndpointOAuthComplete, req)
}

// Logout invalidates the current session on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, true, http.MethodPost, EndpointLogout, nil, nil)
}

// Refresh trades refreshToken for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.Payload, error) {
	return c.payload(ctx, false, http.MethodPost, EndpointRefresh, RefreshRequest{RefreshToken: refreshToken})
}

// Me returns the identity behind the current access token.
func (c *Client) Me(ctx context.Context) (*auth.Payload, error) {
	return c.payload(ctx, true, http.MethodGet, EndpointMe, nil)
}

// UpdateProfile changes profile fields and returns the new identity.
func (c *Client) UpdateProfile(ctx context.Context, req ProfileUpdate) (*auth.Payload, error) {
	return c.payload(ctx, true, http.MethodPatch, EndpointProfile, req)
}

// UpdatePreferences changes preferences and returns the new identity.
func (c *Client) UpdatePreferences(ctx context.Context, req PreferencesUpdate) (*auth.Payload, error) {
	return c.payload(ctx, true, http.MethodPatch, EndpointPreferences, req)
}

// UpdateSecurity changes security settings and returns the new identity.
func (c *Client) UpdateSecurity(ctx context.Context, req SecurityUpdate) (*auth.Payload, error) {
	return c.payload(ctx, true, http.MethodPost, EndpointSecurity, req)
}

// OrderSummaries lists the customer's recent orders.
func (c *Client) OrderSummaries(ctx context.Context) ([]auth.OrderSummary, error) {
	var out []auth.OrderSummary
	if err := c.call(ctx, true, http.MethodGet, EndpointOrderSummaries, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

package guard

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storefront/internal/access"
	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/session"
)

func authenticated(roles ...auth.Role) session.Status {
	user := access.Resolve(auth.User{ID: "u-1", Roles: roles})
	return session.Authenticated{Session: auth.Tokens{AccessToken: "a"}, User: user}
}

func static(st session.Status) Source {
	return SourceFunc(func(*http.Request) session.Status { return st })
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("content"))
})

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGuard(t *testing.T) {
	customerOnly := Config{Requirement: access.AnyRole(auth.RoleCustomer)}

	tests := []struct {
		name         string
		status       session.Status
		cfg          Config
		target       string
		wantCode     int
		wantLocation string
		wantBody     string
	}{
		{
			name:         "anonymous goes to sign-in with return path",
			status:       session.Idle{},
			cfg:          customerOnly,
			target:       "/orders?page=2",
			wantCode:     http.StatusSeeOther,
			wantLocation: "/sign-in?redirectTo=%2Forders%3Fpage%3D2",
		},
		{
			name:         "rider goes to fallback, not sign-in",
			status:       authenticated(auth.RoleRider),
			cfg:          customerOnly,
			target:       "/orders",
			wantCode:     http.StatusSeeOther,
			wantLocation: "/",
		},
		{
			name:     "customer is admitted",
			status:   authenticated(auth.RoleCustomer),
			cfg:      customerOnly,
			target:   "/orders",
			wantCode: http.StatusOK,
			wantBody: "content",
		},
		{
			name:     "loading renders placeholder",
			status:   session.Loading{Operation: session.OpRefresh},
			cfg:      customerOnly,
			target:   "/orders",
			wantCode: http.StatusOK,
			wantBody: "Loading",
		},
		{
			name:         "failed without identity is anonymous",
			status:       session.Failed{Message: "Invalid email or password."},
			cfg:          customerOnly,
			target:       "/orders",
			wantCode:     http.StatusSeeOther,
			wantLocation: "/sign-in?redirectTo=%2Forders",
		},
		{
			name: "failed mutation keeps the visitor in",
			status: session.Failed{
				Message:  "Could not update your profile.",
				Retained: &session.Identity{User: access.Resolve(auth.User{ID: "u-1", Roles: []auth.Role{auth.RoleCustomer}})},
			},
			cfg:      customerOnly,
			target:   "/orders",
			wantCode: http.StatusOK,
		},
		{
			name:     "no redirect renders denial",
			status:   authenticated(auth.RoleRider),
			cfg:      Config{Requirement: access.AnyRole(auth.RoleCustomer), NoRedirect: true},
			target:   "/orders",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "fallback equal to current path renders denial",
			status:   authenticated(auth.RoleRider),
			cfg:      Config{Requirement: access.AnyRole(auth.RoleCustomer), FallbackPath: "/orders"},
			target:   "/orders",
			wantCode: http.StatusForbidden,
		},
		{
			name:         "custom sign-in path and parameter",
			status:       session.Idle{Notice: auth.MsgSessionExpired},
			cfg:          Config{SignInPath: "/login", RedirectParam: "next"},
			target:       "/account",
			wantCode:     http.StatusSeeOther,
			wantLocation: "/login?next=%2Faccount",
		},
		{
			name:     "empty requirement admits any signed-in user",
			status:   authenticated(auth.RoleRider),
			cfg:      Config{},
			target:   "/account",
			wantCode: http.StatusOK,
		},
		{
			name:         "admin implies staff",
			status:       authenticated(auth.RoleAdmin),
			cfg:          Config{Requirement: access.Requirement{Roles: []auth.Role{auth.RoleStaff}, Permissions: []auth.Permission{auth.PermOrdersManage}}},
			target:       "/kitchen",
			wantCode:     http.StatusOK,
			wantLocation: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(Guard(static(tt.status), tt.cfg)(okHandler), tt.target)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestGuard_SignInRedirectRoundTrips(t *testing.T) {
	rec := serve(Guard(static(session.Idle{}), Config{Requirement: access.AnyRole(auth.RoleCustomer)})(okHandler), "/orders/42?tab=items")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/sign-in", loc.Path)
	assert.Equal(t, "/orders/42?tab=items", loc.Query().Get("redirectTo"))
}

func TestGuard_LoadingNeverRedirects(t *testing.T) {
	rec := serve(Guard(static(session.Loading{Operation: session.OpRestore}), Config{})(okHandler), "/account")

	assert.Empty(t, rec.Header().Get("Location"))
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
}

func TestGuard_ExposesUser(t *testing.T) {
	var got *auth.User
	h := Guard(static(authenticated(auth.RoleCustomer)), Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFrom(r.Context())
	}))
	serve(h, "/account")

	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.ID)
}

func TestGuard_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	h := Guard(static(session.Idle{}), Config{Name: "orders", Metrics: m})(okHandler)

	serve(h, "/orders")
	serve(h, "/orders")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GuardDecisions.WithLabelValues("orders", string(DecisionSignIn))))
}

func TestDecide_SignInPageIsNotRedirected(t *testing.T) {
	assert.Equal(t, DecisionDeny, Decide(session.Idle{}, Config{}, "/sign-in"))
	assert.Equal(t, DecisionSignIn, Decide(session.Idle{}, Config{}, "/account"))
}

func TestGate(t *testing.T) {
	adminOnly := access.AnyRole(auth.RoleAdmin, auth.RoleSuperAdmin)
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fallback"))
	})

	tests := []struct {
		name     string
		status   session.Status
		req      access.Requirement
		fallback http.Handler
		want     string
	}{
		{"admin sees fragment", authenticated(auth.RoleAdmin), adminOnly, fallback, "content"},
		{"customer sees fallback", authenticated(auth.RoleCustomer), adminOnly, fallback, "fallback"},
		{"nil fallback renders nothing", authenticated(auth.RoleCustomer), adminOnly, nil, ""},
		{"anonymous with empty requirement sees fragment", session.Idle{}, access.Requirement{}, nil, "content"},
		{"loading never redirects", session.Loading{}, adminOnly, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(Gate(static(tt.status), tt.req, tt.fallback)(okHandler), "/")
			assert.Equal(t, tt.want, rec.Body.String())
			assert.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/orders", "/orders"},
		{"/orders?page=2", "/orders?page=2"},
		{"", "/"},
		{"https://evil.example.com", "/"},
		{"//evil.example.com/x", "/"},
		{"/\\evil.example.com", "/"},
		{"orders", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeRedirect(tt.target, "/"))
		})
	}
}

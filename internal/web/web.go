// Package web is the server-rendered storefront front end. Each browser
// visitor owns one session store; the route guards protect the dashboard
// pages and the OAuth callback route completes the redirect sign-in.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/storefront/internal/access"
	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/events"
	"github.com/felixgeelhaar/storefront/internal/guard"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/session"
	"github.com/felixgeelhaar/storefront/internal/storage"
)

// ReturnCookie remembers where to send the visitor after an OAuth round trip.
const ReturnCookie = "storefront_return"

// Config holds front end settings. Zero values take defaults.
type Config struct {
	SignInPath   string
	FallbackPath string

	// RedirectURI is the absolute URL of /auth/callback registered with
	// the identity provider.
	RedirectURI string

	DefaultRole   auth.Role
	SecureCookies bool

	VisitorTTL  time.Duration
	MaxVisitors int

	// LoginRate is sign-in attempts per second per visitor.
	LoginRate  float64
	LoginBurst int

	// AddressLoginRate limits sign-in attempts per client address, so
	// dropping the visitor cookie does not reset the budget.
	AddressLoginRate  float64
	AddressLoginBurst int

	// InitTimeout bounds the background Initialize of a visitor store.
	InitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SignInPath == "" {
		c.SignInPath = "/sign-in"
	}
	if c.FallbackPath == "" {
		c.FallbackPath = "/"
	}
	if c.RedirectURI == "" {
		c.RedirectURI = "http://localhost:3000/auth/callback"
	}
	if c.DefaultRole == "" {
		c.DefaultRole = auth.RoleCustomer
	}
	if c.VisitorTTL == 0 {
		c.VisitorTTL = 30 * time.Minute
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
	if c.LoginRate == 0 {
		c.LoginRate = 0.2
	}
	if c.LoginBurst == 0 {
		c.LoginBurst = 5
	}
	if c.AddressLoginRate == 0 {
		c.AddressLoginRate = 1
	}
	if c.AddressLoginBurst == 0 {
		c.AddressLoginBurst = 20
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 15 * time.Second
	}
	return c
}

// Options wires a Handler.
type Options struct {
	// Gateway is shared; each visitor store binds its own token source.
	Gateway session.Gateway

	// Storage is shared; each visitor gets a prefixed view of it.
	Storage storage.Backend

	// Namespace is the session key inside each visitor's view.
	Namespace string

	Logger  *log.Logger
	Metrics *metrics.Metrics
	Events  events.Publisher
	Config  Config
}

// Page requirements.
var (
	opsPanel       = access.AnyRole(auth.RoleAdmin, auth.RoleSuperAdmin)
	ordersPage     = access.Requirement{Roles: []auth.Role{auth.RoleCustomer}, Permissions: []auth.Permission{auth.PermOrdersView}}
	deliveriesPage = access.AnyRole(auth.RoleRider)
	kitchenPage    = access.Requirement{Roles: []auth.Role{auth.RoleStaff}, Permissions: []auth.Permission{auth.PermOrdersManage}}
	adminPage      = access.Requirement{Roles: []auth.Role{auth.RoleAdmin, auth.RoleSuperAdmin}, RoleOperator: access.OperatorOr}
)

// Handler serves the storefront pages.
type Handler struct {
	cfg      Config
	logger   *log.Logger
	metrics  *metrics.Metrics
	visitors *Registry
	pages    *pages
	root     http.Handler
}

// New builds the front end.
func New(opts Options) (*Handler, error) {
	if opts.Gateway == nil || opts.Storage == nil {
		return nil, errors.New("web: gateway and storage are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.DefaultLogger()
	}

	h := &Handler{
		cfg:     opts.Config.withDefaults(),
		logger:  opts.Logger.With("component", "web"),
		metrics: opts.Metrics,
	}

	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	h.pages = p

	open := func(ctx context.Context, visitorID string) (*session.Store, error) {
		return session.New(ctx, session.Options{
			Gateway: opts.Gateway,
			Storage: storage.Prefixed(opts.Storage, "visitor:"+visitorID+":"),
			Key:     opts.Namespace,
			Logger:  opts.Logger.With("visitor", visitorID),
			Metrics: opts.Metrics,
			Events:  opts.Events,
		})
	}
	h.visitors = NewRegistry(open, h.cfg, opts.Metrics, h.logger)
	h.root = h.middleware(h.routes())
	return h, nil
}

// Visitors exposes the registry, for health reporting and tests.
func (h *Handler) Visitors() *Registry {
	return h.visitors
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// status is the guard.Source of every route.
func (h *Handler) status(r *http.Request) session.Status {
	if v := VisitorFrom(r.Context()); v != nil {
		return v.Store.Status()
	}
	return session.Idle{}
}

func (h *Handler) guarded(name string, req access.Requirement, fn http.HandlerFunc) http.Handler {
	return guard.Guard(guard.SourceFunc(h.status), guard.Config{
		Name:         name,
		Requirement:  req,
		SignInPath:   h.cfg.SignInPath,
		FallbackPath: h.cfg.FallbackPath,
		Loading:      http.HandlerFunc(h.loading),
		Denied:       http.HandlerFunc(h.denied),
		Metrics:      h.metrics,
	})(fn)
}

func (h *Handler) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.home)
	mux.Handle("GET /partials/operations",
		guard.Gate(guard.SourceFunc(h.status), opsPanel, nil)(http.HandlerFunc(h.operations)))

	mux.HandleFunc("GET "+h.cfg.SignInPath, h.signInForm)
	mux.HandleFunc("POST "+h.cfg.SignInPath, h.signIn)
	mux.HandleFunc("GET /auth/google", h.beginGoogle)
	mux.HandleFunc("GET /auth/callback", h.callback)
	mux.HandleFunc("POST /sign-out", h.signOut)

	mux.Handle("GET /account", h.guarded("account", access.Requirement{}, h.account))
	mux.HandleFunc("POST /account/profile", h.updateProfile)
	mux.HandleFunc("POST /account/preferences", h.updatePreferences)
	mux.HandleFunc("POST /account/security", h.updateSecurity)

	mux.Handle("GET /orders", h.guarded("orders", ordersPage, h.orders))
	mux.Handle("GET /deliveries", h.guarded("deliveries", deliveriesPage, h.area("Deliveries", "Your assigned deliveries appear here.")))
	mux.Handle("GET /kitchen", h.guarded("kitchen", kitchenPage, h.area("Kitchen", "Incoming orders for preparation.")))
	mux.Handle("GET /admin", h.guarded("admin", adminPage, h.area("Administration", "Manage staff, menus and system settings.")))

	return mux
}

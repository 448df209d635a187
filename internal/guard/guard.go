// Package guard enforces access control on HTTP routes.
//
// Gate hides a fragment from users who do not meet a requirement and never
// redirects. Guard protects a whole page: it waits out a loading session,
// sends anonymous visitors to sign in with their destination preserved, and
// sends signed-in visitors without access to a fallback page.
package guard

import (
	"context"
	"net/http"
	"net/url"

	"github.com/felixgeelhaar/storefront/internal/access"
	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/session"
)

// Source resolves the session status behind a request.
type Source interface {
	Status(r *http.Request) session.Status
}

// SourceFunc adapts a function to Source.
type SourceFunc func(r *http.Request) session.Status

func (f SourceFunc) Status(r *http.Request) session.Status { return f(r) }

// Decision is the outcome of a guard check.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionLoading  Decision = "loading"
	DecisionSignIn   Decision = "redirect_sign_in"
	DecisionFallback Decision = "redirect_fallback"
	DecisionDeny     Decision = "deny"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const userContextKey contextKey = "guard:user"

// UserFrom returns the user admitted by a guard, if any.
func UserFrom(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)
	return user
}

func withUser(r *http.Request, user *auth.User) *http.Request {
	if user == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

// Allowed reports whether st satisfies req. An empty requirement is always
// satisfied, even by an anonymous visitor.
func Allowed(st session.Status, req access.Requirement) bool {
	return access.UserCanAccess(session.UserOf(st), req)
}

// Gate renders next when the visitor satisfies req and fallback otherwise.
// A nil fallback renders nothing.
func Gate(src Source, req access.Requirement, fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := src.Status(r)
			if Allowed(st, req) {
				next.ServeHTTP(w, withUser(r, session.UserOf(st)))
				return
			}
			if fallback != nil {
				fallback.ServeHTTP(w, r)
			}
		})
	}
}

// Config configures Guard.
type Config struct {
	// Name labels decisions in metrics. Defaults to the request path.
	Name string

	Requirement access.Requirement

	// SignInPath receives anonymous visitors. Defaults to "/sign-in".
	SignInPath string

	// RedirectParam names the return-path query parameter. Defaults to
	// "redirectTo".
	RedirectParam string

	// FallbackPath receives signed-in visitors who lack access. Defaults
	// to "/".
	FallbackPath string

	// NoRedirect renders Denied instead of redirecting to FallbackPath.
	NoRedirect bool

	// Loading renders while the session is loading. Defaults to a page
	// that reloads itself.
	Loading http.Handler

	// Denied renders when access is denied without a redirect. Defaults
	// to a 403 page.
	Denied http.Handler

	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.SignInPath == "" {
		c.SignInPath = "/sign-in"
	}
	if c.RedirectParam == "" {
		c.RedirectParam = "redirectTo"
	}
	if c.FallbackPath == "" {
		c.FallbackPath = "/"
	}
	if c.Loading == nil {
		c.Loading = http.HandlerFunc(defaultLoading)
	}
	if c.Denied == nil {
		c.Denied = http.HandlerFunc(defaultDenied)
	}
	return c
}

// Decide maps a status to a guard decision for a request to path.
func Decide(st session.Status, cfg Config, path string) Decision {
	cfg = cfg.withDefaults()

	if _, loading := st.(session.Loading); loading {
		return DecisionLoading
	}
	user := session.UserOf(st)
	if user == nil {
		if path == cfg.SignInPath {
			return DecisionDeny
		}
		return DecisionSignIn
	}
	if access.UserCanAccess(user, cfg.Requirement) {
		return DecisionAllow
	}
	if cfg.NoRedirect || path == cfg.FallbackPath {
		return DecisionDeny
	}
	return DecisionFallback
}

// Guard enforces cfg on every request to next. The decision is taken per
// request from the settled status, so a loading session never triggers a
// redirect.
func Guard(src Source, cfg Config) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := src.Status(r)
			decision := Decide(st, cfg, r.URL.Path)

			name := cfg.Name
			if name == "" {
				name = r.URL.Path
			}
			cfg.Metrics.RecordGuard(name, string(decision))

			switch decision {
			case DecisionAllow:
				next.ServeHTTP(w, withUser(r, session.UserOf(st)))
			case DecisionLoading:
				cfg.Loading.ServeHTTP(w, r)
			case DecisionSignIn:
				http.Redirect(w, r, SignInURL(cfg.SignInPath, cfg.RedirectParam, r.URL.RequestURI()), http.StatusSeeOther)
			case DecisionFallback:
				http.Redirect(w, r, cfg.FallbackPath, http.StatusSeeOther)
			default:
				cfg.Denied.ServeHTTP(w, r)
			}
		})
	}
}

// SignInURL builds the sign-in location that returns to destination.
func SignInURL(signInPath, param, destination string) string {
	if param == "" {
		param = "redirectTo"
	}
	u := url.URL{Path: signInPath, RawQuery: url.Values{param: {destination}}.Encode()}
	return u.String()
}

// SafeRedirect returns target when it is a local path and fallback
// otherwise, so a redirectTo parameter cannot send visitors off-site.
func SafeRedirect(target, fallback string) string {
	if target == "" {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" || len(u.Path) == 0 || u.Path[0] != '/' {
		return fallback
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return fallback
	}
	return target
}

func defaultLoading(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!doctype html><title>Loading</title><p>Loading your account&hellip;</p>`))
}

func defaultDenied(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`<!doctype html><title>Access denied</title><p>You do not have access to this page.</p>`))
}

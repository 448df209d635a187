package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/guard"
	"github.com/felixgeelhaar/storefront/internal/session"
)

const msgTooManyAttempts = "Too many sign-in attempts. Please wait a moment and try again."

func (h *Handler) visitor(r *http.Request) *Visitor {
	return VisitorFrom(r.Context())
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	st := h.visitor(r).Store.Status()
	h.render(w, r, http.StatusOK, "home", view{
		Title:   "Home",
		User:    session.UserOf(st),
		Notice:  session.Message(st),
		ShowOps: guard.Allowed(st, opsPanel),
	})
}

func (h *Handler) operations(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = fmt.Fprintf(w, `<p class="operations">Active visitors: %d</p>`, h.visitors.Len())
}

func (h *Handler) signInView(r *http.Request, redirectTo string) view {
	st := h.visitor(r).Store.Status()
	return view{
		Title:      "Sign in",
		Notice:     session.Message(st),
		RedirectTo: redirectTo,
		Roles:      auth.Roles,
	}
}

func (h *Handler) signInForm(w http.ResponseWriter, r *http.Request) {
	redirectTo := guard.SafeRedirect(r.URL.Query().Get("redirectTo"), h.cfg.FallbackPath)
	if _, ok := h.visitor(r).Store.Status().(session.Authenticated); ok {
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "sign_in", h.signInView(r, redirectTo))
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	v := h.visitor(r)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}
	redirectTo := guard.SafeRedirect(r.PostForm.Get("redirectTo"), h.cfg.FallbackPath)

	fail := func(code int, message string) {
		page := h.signInView(r, redirectTo)
		page.Notice = ""
		page.Error = message
		h.render(w, r, code, "sign_in", page)
	}

	if !h.visitors.AllowSignIn(v, clientAddress(r)) {
		fail(http.StatusTooManyRequests, msgTooManyAttempts)
		return
	}

	role, err := h.role(r.PostForm.Get("role"))
	if err != nil {
		fail(http.StatusBadRequest, "Choose a valid account type.")
		return
	}

	err = v.Store.LoginWithEmail(r.Context(), session.Credentials{
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
		Role:     role,
	})
	if err != nil {
		code := http.StatusBadGateway
		if auth.IsAuthError(err, auth.ErrInvalidCredentials) {
			code = http.StatusUnauthorized
		}
		fail(code, auth.UserMessage(err))
		return
	}
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

func (h *Handler) role(s string) (auth.Role, error) {
	if strings.TrimSpace(s) == "" {
		return h.cfg.DefaultRole, nil
	}
	return auth.ParseRole(s)
}

func (h *Handler) beginGoogle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectTo := guard.SafeRedirect(q.Get("redirectTo"), h.cfg.FallbackPath)

	role, err := h.role(q.Get("role"))
	if err != nil {
		page := h.signInView(r, redirectTo)
		page.Error = "Choose a valid account type."
		h.render(w, r, http.StatusBadRequest, "sign_in", page)
		return
	}

	target, err := h.visitor(r).Store.BeginOAuth(r.Context(), session.OAuthRequest{
		Role:        role,
		RedirectURI: h.cfg.RedirectURI,
	})
	if err != nil {
		page := h.signInView(r, redirectTo)
		page.Error = auth.UserMessage(err)
		h.render(w, r, http.StatusBadGateway, "sign_in", page)
		return
	}

	http.SetCookie(w, h.cookie(ReturnCookie, url.QueryEscape(redirectTo), session.OAuthStateTTL))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// callback never redirects on failure: a forged or stale callback must be
// visible to the visitor.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	err := h.visitor(r).Store.CompleteOAuth(r.Context(), session.CallbackFromQuery(r.URL.Query()))
	if err != nil {
		code := http.StatusBadGateway
		if auth.IsAuthError(err, auth.ErrOAuthProvider) || auth.IsAuthError(err, auth.ErrOAuthStateMismatch) {
			code = http.StatusBadRequest
		}
		h.render(w, r, code, "callback_error", view{
			Title:    "Sign-in failed",
			Error:    auth.UserMessage(err),
			RetryURL: h.cfg.SignInPath,
		})
		return
	}

	destination := h.cfg.FallbackPath
	if c, err := r.Cookie(ReturnCookie); err == nil {
		if v, err := url.QueryUnescape(c.Value); err == nil {
			destination = guard.SafeRedirect(v, h.cfg.FallbackPath)
		}
	}
	http.SetCookie(w, h.cookie(ReturnCookie, "", -1))
	http.Redirect(w, r, destination, http.StatusSeeOther)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.visitor(r).Store.Logout(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "logout did not complete cleanly", "error", err.Error())
	}
	http.Redirect(w, r, h.cfg.FallbackPath, http.StatusSeeOther)
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	st := h.visitor(r).Store.Status()
	h.render(w, r, http.StatusOK, "account", view{
		Title:  "Account",
		User:   guard.UserFrom(r.Context()),
		Notice: session.Message(st),
	})
}

// mutation runs a profile change and maps its outcome to a response. An
// expired or missing session goes to sign-in; any other failure re-renders
// the account page with the retained profile.
func (h *Handler) mutation(w http.ResponseWriter, r *http.Request, apply func(*session.Store) error) {
	v := h.visitor(r)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The form could not be read.")
		return
	}

	err := apply(v.Store)
	switch {
	case err == nil:
		http.Redirect(w, r, "/account", http.StatusSeeOther)
	case auth.IsAuthError(err, auth.ErrSessionExpired), auth.IsAuthError(err, auth.ErrNotSignedIn):
		http.Redirect(w, r, guard.SignInURL(h.cfg.SignInPath, "redirectTo", "/account"), http.StatusSeeOther)
	default:
		h.render(w, r, http.StatusBadGateway, "account", view{
			Title: "Account",
			User:  session.UserOf(v.Store.Status()),
			Error: auth.UserMessage(err),
		})
	}
}

func formValue(r *http.Request, key string) *string {
	if !r.PostForm.Has(key) {
		return nil
	}
	v := strings.TrimSpace(r.PostForm.Get(key))
	return &v
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	h.mutation(w, r, func(s *session.Store) error {
		return s.UpdateProfile(r.Context(), session.ProfileUpdate{
			FullName:  formValue(r, "fullName"),
			Phone:     formValue(r, "phone"),
			AvatarURL: formValue(r, "avatarUrl"),
		})
	})
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	h.mutation(w, r, func(s *session.Store) error {
		upd := session.PreferencesUpdate{
			Theme:    formValue(r, "theme"),
			Language: formValue(r, "language"),
		}
		switch r.PostForm.Get("notifications") {
		case "on":
			on := true
			upd.Notifications = &on
		case "off":
			off := false
			upd.Notifications = &off
		}
		return s.UpdatePreferences(r.Context(), upd)
	})
}

func (h *Handler) updateSecurity(w http.ResponseWriter, r *http.Request) {
	h.mutation(w, r, func(s *session.Store) error {
		yes := true
		var upd session.SecurityUpdate
		switch r.PostForm.Get("twoFactor") {
		case "enable":
			upd.EnableTwoFactor = &yes
		case "disable":
			upd.DisableTwoFactor = &yes
		}
		return s.UpdateSecurity(r.Context(), upd)
	})
}

func (h *Handler) orders(w http.ResponseWriter, r *http.Request) {
	store := h.visitor(r).Store
	store.RefreshOrders(r.Context())
	h.render(w, r, http.StatusOK, "orders", view{
		Title:  "Orders",
		User:   guard.UserFrom(r.Context()),
		Orders: store.Orders(),
	})
}

func (h *Handler) area(title, description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, http.StatusOK, "area", view{
			Title:       title,
			User:        guard.UserFrom(r.Context()),
			Description: description,
		})
	}
}

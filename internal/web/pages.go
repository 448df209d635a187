package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "sign_in", "callback_error", "account", "orders", "area", "loading", "error"}

type pages struct {
	byName map[string]*template.Template
}

var funcs = template.FuncMap{
	"roles": func(roles []auth.Role) string {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = r.String()
		}
		return strings.Join(names, ", ")
	},
	"money": func(total float64, currency string) string {
		if currency == "" {
			currency = "EUR"
		}
		return fmt.Sprintf("%.2f %s", total, currency)
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func loadPages() (*pages, error) {
	base, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	p := &pages{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.Must(base.Clone()).ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		p.byName[name] = t
	}
	return p, nil
}

// view is the data every page renders from.
type view struct {
	Title      string
	User       *auth.User
	Status     string
	Notice     string
	Error      string
	SignInPath string
	RedirectTo string
	Roles      []auth.Role

	Orders      []auth.OrderSummary
	ShowOps     bool
	Description string
	RetryURL    string
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, code int, name string, v view) {
	t, ok := h.pages.byName[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	if v.SignInPath == "" {
		v.SignInPath = h.cfg.SignInPath
	}
	if vis := VisitorFrom(r.Context()); vis != nil && v.Status == "" {
		v.Status = vis.Store.Status().Name()
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		h.logger.LogError(r.Context(), "failed to render page", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	h.render(w, r, code, "error", view{Title: http.StatusText(code), Error: message})
}

func (h *Handler) loading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Refresh", "1")
	h.render(w, r, http.StatusOK, "loading", view{Title: "Loading"})
}

func (h *Handler) denied(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusForbidden, "You do not have access to this page.")
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	denyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// emit writes v as JSON or YAML, or calls text for the default format.
func (a *app) emit(w io.Writer, v any, text func(io.Writer) error) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// identityView is the machine-readable shape of the signed-in identity.
// Tokens are never printed.
type identityView struct {
	Status           string              `json:"status" yaml:"status"`
	ID               string              `json:"id" yaml:"id"`
	Email            string              `json:"email" yaml:"email"`
	FullName         string              `json:"fullName" yaml:"fullName"`
	Roles            []auth.Role         `json:"roles" yaml:"roles"`
	Permissions      []auth.Permission   `json:"permissions" yaml:"permissions"`
	LoyaltyPoints    int                 `json:"loyaltyPoints" yaml:"loyaltyPoints"`
	TwoFactorEnabled bool                `json:"twoFactorEnabled" yaml:"twoFactorEnabled"`
	Preferences      preferencesView     `json:"preferences" yaml:"preferences"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Orders           []auth.OrderSummary `json:"orders,omitempty" yaml:"orders,omitempty"`
}

type preferencesView struct {
	Theme         string `json:"theme,omitempty" yaml:"theme,omitempty"`
	Language      string `json:"language,omitempty" yaml:"language,omitempty"`
	Notifications *bool  `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

func newIdentityView(st session.Status, id *session.Identity) identityView {
	v := identityView{
		Status:           st.Name(),
		ID:               id.User.ID,
		Email:            id.User.Email,
		FullName:         id.User.FullName,
		Roles:            id.User.Roles,
		Permissions:      id.User.Permissions,
		LoyaltyPoints:    id.User.LoyaltyPoints,
		TwoFactorEnabled: id.User.TwoFactorEnabled,
		Preferences: preferencesView{
			Theme:         id.User.Preferences.Theme,
			Language:      id.User.Preferences.Language,
			Notifications: id.User.Preferences.Notifications,
		},
	}
	if !id.Session.ExpiresAt.IsZero() {
		exp := id.Session.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func (v identityView) render(w io.Writer) error {
	roles := make([]string, len(v.Roles))
	for i, r := range v.Roles {
		roles[i] = r.String()
	}
	twoFactor := "off"
	if v.TwoFactorEnabled {
		twoFactor = "on"
	}

	lines := []string{
		titleStyle.Render(v.FullName),
		row("Email", v.Email),
		row("Roles", strings.Join(roles, ", ")),
		row("Loyalty", fmt.Sprintf("%d points", v.LoyaltyPoints)),
		row("Two-factor", twoFactor),
	}
	if v.ExpiresAt != nil {
		lines = append(lines, row("Token expires", v.ExpiresAt.Local().Format(time.RFC1123)))
	}
	_, err := fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
	return err
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func renderOrders(w io.Writer, orders []auth.OrderSummary) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders yet.")
		return err
	}
	for _, o := range orders {
		currency := o.Currency
		if currency == "" {
			currency = "EUR"
		}
		if _, err := fmt.Fprintf(w, "%-12s %-12s %3d items %10.2f %s\n", o.ID, o.Status, o.ItemCount, o.Total, currency); err != nil {
			return err
		}
	}
	return nil
}

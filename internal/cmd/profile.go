package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storefront/internal/session"
)

// changed returns &value when the flag was set, so unset flags leave the
// field untouched on the server.
func changed[T any](cmd *cobra.Command, name string, value T) *T {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// mutation runs fn against the persisted session and prints the result.
func (a *app) mutation(cmd *cobra.Command, done string, fn func(*session.Store) error) error {
	s, err := a.store(cmd.Context())
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	id, _ := s.Identity()
	return a.emit(cmd.OutOrStdout(), newIdentityView(s.Status(), id), func(w io.Writer) error {
		_, err := fmt.Fprintln(w, okStyle.Render("✓")+" "+done)
		return err
	})
}

func newProfileCmd(a *app) *cobra.Command {
	var fullName, phone, avatarURL string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the profile of the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			upd := session.ProfileUpdate{
				FullName:  changed(cmd, "full-name", fullName),
				Phone:     changed(cmd, "phone", phone),
				AvatarURL: changed(cmd, "avatar-url", avatarURL),
			}
			return a.mutation(cmd, "Profile updated", func(s *session.Store) error {
				return s.UpdateProfile(cmd.Context(), upd)
			})
		},
	}
	cmd.Flags().StringVar(&fullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&avatarURL, "avatar-url", "", "avatar image URL")
	cmd.MarkFlagsOneRequired("full-name", "phone", "avatar-url")
	return cmd
}

func newPreferencesCmd(a *app) *cobra.Command {
	var theme, language string
	var notifications bool

	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Update theme, language and notification preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			upd := session.PreferencesUpdate{
				Theme:         changed(cmd, "theme", theme),
				Language:      changed(cmd, "language", language),
				Notifications: changed(cmd, "notifications", notifications),
			}
			return a.mutation(cmd, "Preferences saved", func(s *session.Store) error {
				return s.UpdatePreferences(cmd.Context(), upd)
			})
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "theme, e.g. light or dark")
	cmd.Flags().StringVar(&language, "language", "", "language tag, e.g. en or de")
	cmd.Flags().BoolVar(&notifications, "notifications", false, "receive order notifications")
	cmd.MarkFlagsOneRequired("theme", "language", "notifications")
	return cmd
}

func newSecurityCmd(a *app) *cobra.Command {
	var enable, disable bool

	cmd := &cobra.Command{
		Use:   "security",
		Short: "Enable or disable two-factor authentication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			upd := session.SecurityUpdate{
				EnableTwoFactor:  changed(cmd, "enable-2fa", enable),
				DisableTwoFactor: changed(cmd, "disable-2fa", disable),
			}
			return a.mutation(cmd, "Security settings updated", func(s *session.Store) error {
				return s.UpdateSecurity(cmd.Context(), upd)
			})
		},
	}
	cmd.Flags().BoolVar(&enable, "enable-2fa", false, "turn two-factor authentication on")
	cmd.Flags().BoolVar(&disable, "disable-2fa", false, "turn two-factor authentication off")
	cmd.MarkFlagsMutuallyExclusive("enable-2fa", "disable-2fa")
	cmd.MarkFlagsOneRequired("enable-2fa", "disable-2fa")
	return cmd
}

package cmd

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storefront/internal/auth"
	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
	"github.com/felixgeelhaar/storefront/internal/session"
)

func newOAuthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in with Google",
		Long: `Sign in with Google in two steps.

'oauth begin' prints the provider URL to open in a browser. After consenting,
the browser lands on the redirect URI; pass that full URL to 'oauth complete'.
The pending state is kept in session storage for ` + session.OAuthStateTTL.String() + `.`,
	}
	cmd.AddCommand(newOAuthBeginCmd(a), newOAuthCompleteCmd(a))
	return cmd
}

func newOAuthBeginCmd(a *app) *cobra.Command {
	var role, redirectURI string

	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Print the Google sign-in URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := a.cfg.DefaultRole()
			if role != "" {
				parsed, err := auth.ParseRole(role)
				if err != nil {
					return sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid --role", err)
				}
				r = parsed
			}
			if redirectURI == "" {
				redirectURI = a.cfg.OAuth.RedirectURI
			}

			s, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			target, err := s.BeginOAuth(cmd.Context(), session.OAuthRequest{Role: r, RedirectURI: redirectURI})
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), map[string]string{"url": target}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Open this URL to continue:\n\n  %s\n\nThen run: storefront oauth complete '<redirect url>'\n", target)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role to sign in as (default oauth.default_role)")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect URI registered with the provider (default oauth.redirect_uri)")
	return cmd
}

func newOAuthCompleteCmd(a *app) *cobra.Command {
	var cb session.OAuthCallback

	cmd := &cobra.Command{
		Use:   "complete [redirect-url]",
		Short: "Finish Google sign-in from the redirect URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				u, err := url.Parse(args[0])
				if err != nil {
					return sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid redirect URL", err)
				}
				cb = session.CallbackFromQuery(u.Query())
			}

			s, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.CompleteOAuth(cmd.Context(), cb); err != nil {
				return err
			}
			id, _ := s.Identity()
			return a.emit(cmd.OutOrStdout(), newIdentityView(s.Status(), id), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s Signed in with Google as %s\n", okStyle.Render("✓"), id.User.Email)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&cb.Code, "code", "", "authorization code")
	cmd.Flags().StringVar(&cb.State, "state", "", "state returned by the provider")
	cmd.Flags().StringVar(&cb.Error, "error", "", "error returned by the provider")
	return cmd
}

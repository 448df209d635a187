package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storefront/internal/access"
	"github.com/felixgeelhaar/storefront/internal/auth"
	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
	"github.com/felixgeelhaar/storefront/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		creds         session.Credentials
		role          string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password and persist the session.

Missing values are prompted for on a terminal. In scripts pass the password
on stdin:

  echo "$PASSWORD" | storefront login --email ada@example.com --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if role != "" {
				r, err := auth.ParseRole(role)
				if err != nil {
					return sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid --role", err)
				}
				creds.Role = r
			}
			if passwordStdin {
				pw, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			if creds.Email == "" || creds.Password == "" {
				if !isTerminal(cmd.InOrStdin()) {
					return sferrors.New(sferrors.ErrCodeBadArgument, "email and password are required").
						WithSuggestion("Pass --email and --password-stdin when not running in a terminal")
				}
				if creds.Role == "" {
					creds.Role = a.cfg.DefaultRole()
				}
				if err := promptCredentials(&creds); err != nil {
					return err
				}
			}

			s, err := a.store(ctx)
			if err != nil {
				return err
			}
			if err := s.LoginWithEmail(ctx, creds); err != nil {
				return err
			}
			id, _ := s.Identity()
			return a.emit(cmd.OutOrStdout(), newIdentityView(s.Status(), id), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s Signed in as %s\n", okStyle.Render("✓"), id.User.Email)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&role, "role", "", "role to sign in as ("+joinRoles()+")")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return err
		},
	}
}

// requireIdentity returns the identity of a confirmed session.
func requireIdentity(s *session.Store) (*session.Identity, error) {
	id, ok := s.Identity()
	if !ok {
		if msg := session.Message(s.Status()); msg != "" {
			return nil, sferrors.New(sferrors.ErrCodeNotSignedIn, msg).
				WithSuggestion("Sign in: storefront login")
		}
		return nil, sferrors.NewNotSignedInError()
	}
	return id, nil
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long:  "Confirm the persisted session with the backend, refreshing it if needed, and show who is signed in.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.confirmed(cmd.Context())
			if err != nil {
				return err
			}
			id, err := requireIdentity(s)
			if err != nil {
				return err
			}
			view := newIdentityView(s.Status(), id)
			return a.emit(cmd.OutOrStdout(), view, view.render)
		},
	}
}

func newOrdersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List recent orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.confirmed(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := requireIdentity(s); err != nil {
				return err
			}
			orders := s.Orders()
			return a.emit(cmd.OutOrStdout(), orders, func(w io.Writer) error {
				return renderOrders(w, orders)
			})
		},
	}
}

type canResult struct {
	Allowed     bool   `json:"allowed" yaml:"allowed"`
	Requirement string `json:"requirement" yaml:"requirement"`
	User        string `json:"user" yaml:"user"`
}

func newCanCmd(a *app) *cobra.Command {
	var roles, perms []string
	var roleOp, permOp string

	cmd := &cobra.Command{
		Use:   "can",
		Short: "Check whether the signed-in user meets a requirement",
		Long: `Evaluate a role and permission requirement for the signed-in user.

Roles pass when any one is held unless --role-op=and. Permissions pass only
when all are held unless --perm-op=or. Exits with status 5 when denied.

  storefront can --role admin,superadmin
  storefront can --role customer --permission orders:view`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := buildRequirement(roles, perms, roleOp, permOp)
			if err != nil {
				return err
			}
			s, err := a.confirmed(cmd.Context())
			if err != nil {
				return err
			}
			id, err := requireIdentity(s)
			if err != nil {
				return err
			}

			res := canResult{
				Allowed:     access.UserCanAccess(&id.User, req),
				Requirement: req.String(),
				User:        id.User.Email,
			}
			if err := a.emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
				verdict := okStyle.Render("allowed")
				if !res.Allowed {
					verdict = denyStyle.Render("denied")
				}
				_, err := fmt.Fprintf(w, "%s: %s (%s)\n", res.User, verdict, res.Requirement)
				return err
			}); err != nil {
				return err
			}
			if !res.Allowed {
				return sferrors.NewAccessDeniedError(res.Requirement)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&roles, "role", nil, "required roles (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "required permissions, e.g. orders:view")
	cmd.Flags().StringVar(&roleOp, "role-op", "or", "combine roles with or/and")
	cmd.Flags().StringVar(&permOp, "perm-op", "and", "combine permissions with or/and")
	return cmd
}

func buildRequirement(roles, perms []string, roleOp, permOp string) (access.Requirement, error) {
	var req access.Requirement
	var err error

	if req.RoleOperator, err = access.ParseOperator(roleOp); err != nil {
		return req, sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid --role-op", err)
	}
	if req.PermissionOperator, err = access.ParseOperator(permOp); err != nil {
		return req, sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid --perm-op", err)
	}
	for _, r := range splitList(roles) {
		role, err := auth.ParseRole(r)
		if err != nil {
			return req, sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid --role", err)
		}
		req.Roles = append(req.Roles, role)
	}
	for _, p := range splitList(perms) {
		perm, err := auth.ParsePermission(p)
		if err != nil {
			return req, sferrors.Wrap(sferrors.ErrCodeBadArgument, "invalid --permission", err)
		}
		req.Permissions = append(req.Permissions, perm)
	}
	if req.Empty() {
		return req, sferrors.New(sferrors.ErrCodeBadArgument, "at least one --role or --permission is required")
	}
	return req, nil
}

func joinRoles() string {
	names := make([]string, len(auth.Roles))
	for i, r := range auth.Roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}

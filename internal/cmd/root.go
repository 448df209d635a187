// Package cmd implements the storefront command line: one persisted
// session driven from a terminal, plus `serve` for the web front end.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Each call returns an independent
// tree, so tests can run commands without shared flag state.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Sign in to the storefront and manage your session",
		Long: `storefront drives a storefront session from the terminal.

It signs in with email and password or Google, keeps the session in local
storage (encrypted when storage.secret is set), refreshes it when the backend
rejects the access token, and manages the signed-in profile. 'storefront serve'
runs the web front end in which every browser visitor owns a session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/storefront/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json (overrides log.format)")
	flags.StringVarP(&a.output, "output", "o", "text", "output format: text, json or yaml")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newOAuthCmd(a),
		newProfileCmd(a),
		newPreferencesCmd(a),
		newSecurityCmd(a),
		newOrdersCmd(a),
		newCanCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt by main.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

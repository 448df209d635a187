package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/storefront/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			redacted := a.cfg.Redacted()
			return a.emit(cmd.OutOrStdout(), redacted, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(redacted); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.cfg.File
			if p == "" {
				p = config.DefaultPath() + " (not found, using defaults)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}

	cmd.AddCommand(show, path)
	return cmd
}

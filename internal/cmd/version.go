package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/storefront/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// version works without a config file.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()
			return a.emit(cmd.OutOrStdout(), info, func(w io.Writer) error {
				if verbose {
					_, err := fmt.Fprintln(w, info.String())
					return err
				}
				_, err := fmt.Fprintf(w, "storefront %s\n", info.Short())
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show commit, build date and platform")
	return cmd
}

// Package version provides the version command
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usagipass/migration-tools/internal/buildinfo"
)

// Command creates and returns the version command
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), build.String())
			return err
		},
	}
}

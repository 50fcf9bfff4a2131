package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/pneumodetect/internal/buildinfo"
)

// Command creates the version command. It needs no configuration.
func Command(info *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		},
	}
}

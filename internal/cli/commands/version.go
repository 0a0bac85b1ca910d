package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display wellplan version and the protocols it was built with.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wellplan v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Protocols: %s\n", strings.Join(protocols.List(), ", "))
		},
	}
}

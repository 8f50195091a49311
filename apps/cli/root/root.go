package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the RentFlowHQ e-sign admin CLI. Subcommands
// (migrate, lease, outbox) are attached here.
var rootCmd = &cobra.Command{
	Use:           "rentflow",
	Short:         "RentFlowHQ e-signature admin CLI",
	Long:          "Administrative utilities for the RentFlowHQ lease e-signature service (migrations, lease management, outbox draining).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

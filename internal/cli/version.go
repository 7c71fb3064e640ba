package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"cryptalert/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// Skips config loading so the binary reports its version without a config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cryptalert %s %s\n", version.String(), runtime.Version())
	},
}

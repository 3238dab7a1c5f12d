// =============================================================================
// FILE: internal/cli/root.go
// PURPOSE: Root cobra command. Defines the top-level CLI command, persistent
//          flags, and the command tree structure, the way the teacher's
//          internal/cli/root.go wires a cobra root for a download tool.
// =============================================================================

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harmonydl/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "harmonydl",
	Short: "harmonydl — music download orchestrator",
	Long:  `harmonydl coordinates batch music downloads against a Soulseek-like peer gateway: scheduling, retries, tagging, deduping, and atomic library moves.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (JSON)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Disable coloured terminal logging")

	rootCmd.Version = version.String()
}

// Root returns the root cobra command for adding sub-commands.
func Root() *cobra.Command {
	return rootCmd
}

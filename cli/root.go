// Package cli implements the engagement engine command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "engage",
	Short: "Engagement scoring engine for the community chat bridge",
	Long: `engage records member actions, keeps season leaderboards and weekly
streaks, awards badges and promotes members to contributor roles.

Run "engage serve" for the HTTP API and scheduler. The other commands
operate on the same database for maintenance and debugging.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

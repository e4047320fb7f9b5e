// Package cli implements the eengctl command-line interface using Cobra,
// grounded on the teacher's internal/cli (same root command + subcommand
// registration style via package-level init()), re-pointed from model
// management (pull/run/list/ps) onto the engine's batch/asset/server
// operations.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cjgribel/eeng-core/internal/infra/config"
)

var rootCmd = &cobra.Command{
	Use:           "eengctl",
	Short:         "eengctl — inspect and drive an eeng-core engine instance",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (defaults to $EENG_HOME/config.toml)")
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

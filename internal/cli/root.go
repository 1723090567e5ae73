// Package cli holds the gascontrol commands: the API server and a small
// client for the fiados endpoints.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/iurnickita/gascontrol/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "gascontrol",
	Short:        "Gas cylinder delivery orders and customer credit (fiados)",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a TOML config file")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads defaults, the --config file and the environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.GetConfig(path)
}

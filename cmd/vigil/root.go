package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - parental supervision agent",
	Long: `Vigil is a parental supervision agent for a child's computer. It tracks
screen time against a daily budget, monitors room noise for configured
thresholds, and syncs state and guardian commands with a remote control
plane.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the run command when no subcommand is provided
		return runAgent(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/vigil/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

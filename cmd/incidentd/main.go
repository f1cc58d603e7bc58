// Command incidentd serves the exam incident API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incidentd",
	Short: "Exam logistics incident service",
	Long: `incidentd records and tracks incidents raised during examinations:
missing scripts, venue problems, malpractice reports and the like.

Configuration is read from an optional YAML file and INCIDENTD_ environment
variables, e.g. INCIDENTD_DATABASE__URL.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

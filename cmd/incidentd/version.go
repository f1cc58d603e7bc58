package main

import (
	"fmt"

	"github.com/examdesk/incidentd/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "incidentd %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildDate)
	},
}

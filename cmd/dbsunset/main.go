// Package main provides the entry point for the dbsunset CLI tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsunset/dbsunset/cmd/dbsunset/commands"
	"github.com/dbsunset/dbsunset/pkg/version"
)

const exitInterrupted = 130

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "dbsunset",
		Short: "dbsunset - automated database decommissioning",
		Long: `dbsunset discovers database references across repositories, refactors
them through type-aware rules and an LLM processor, and opens pull
requests with the changes.

Commands:
  decommission  Run the decommissioning workflow against target repositories
  render        Render a workflow log snapshot as an HTML dashboard
  rules         Show the effective refactoring rule packs
  serve         Serve workflow logs and dashboards over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewDecommissionCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewRulesCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		if errors.Is(err, context.Canceled) {
			os.Exit(exitInterrupted)
		}

		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "dbsunset %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

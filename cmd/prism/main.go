// Package main is the prism CLI. Prism ingests RSS/Atom feeds on adaptive
// schedules, deduplicates articles, and runs cost-governed LLM
// classification over them, exposing everything through an HTTP/JSON API.
//
// Start the server:
//
//	prism serve --config prism.yaml
//
// Apply the database schema:
//
//	prism migrate
//
// Configuration comes from the YAML file with environment overrides;
// DATABASE_URL and LLM_API_KEY are the two required settings.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prism",
		Short:         "Feed ingestion and LLM analysis control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(buildServeCmd())
	root.AddCommand(buildMigrateCmd())
	root.AddCommand(buildConfigCmd())
	root.AddCommand(buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prism %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

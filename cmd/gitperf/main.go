// Package main provides the entry point for the gitperf CLI tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/cmd/gitperf/commands"
	"github.com/kaihowl/gitperf/internal/observability"
	"github.com/kaihowl/gitperf/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version.Version
	cfg.LogJSON = os.Getenv("GITPERF_LOG_FORMAT") == "json"

	providers, err := observability.Init(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "observability init failed: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "gitperf",
		Short: "Track and audit performance measurements across git history",
		Long: `gitperf stores scalar performance measurements as git notes, keyed to the
commit that produced them, and audits new commits for regressions against
recent history.

Commands:
  add         Record a measurement against HEAD
  push        Publish locally recorded measurements to a remote
  pull        Fetch recorded measurements from a remote
  audit       Compare HEAD against recent history and report regressions
  report      Render a retrieved series as HTML or CSV
  bump-epoch  Start a new baseline for a measurement name
  status      Show local write-ref/read-ref state
  size        Count stored measurements
  list-commits List recent commits with their measurement counts
  reset       Discard local, unpublished measurements
  remove      Drop all stored measurements for a name`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	deps := commands.Deps{Logger: providers.Logger}

	rootCmd.AddCommand(commands.NewAddCommand(deps))
	rootCmd.AddCommand(commands.NewPushCommand(deps))
	rootCmd.AddCommand(commands.NewPullCommand(deps))
	rootCmd.AddCommand(commands.NewAuditCommand(deps))
	rootCmd.AddCommand(commands.NewReportCommand(deps))
	rootCmd.AddCommand(commands.NewBumpEpochCommand(deps))
	rootCmd.AddCommand(commands.NewStatusCommand(deps))
	rootCmd.AddCommand(commands.NewSizeCommand(deps))
	rootCmd.AddCommand(commands.NewListCommitsCommand(deps))
	rootCmd.AddCommand(commands.NewResetCommand(deps))
	rootCmd.AddCommand(commands.NewRemoveCommand(deps))
	rootCmd.AddCommand(versionCmd())

	runErr := rootCmd.Execute()

	shutdownErr := providers.Shutdown(context.Background())
	if shutdownErr != nil {
		providers.Logger.Warn("observability shutdown failed", slog.Any("error", shutdownErr))
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "gitperf %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

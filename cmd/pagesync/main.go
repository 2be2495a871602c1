package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/pagesync/internal/app"
	"github.com/spf13/cobra"
)

var (
	cfgFileName string
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "pagesync",
	Short: "Mirror remote pages and database records into local markdown",
	Long: `pagesync synchronizes a tree of remote documents into a local directory
of markdown files with metadata headers. Runs are incremental: unchanged
records are left alone, renamed records move, removed records are cleaned up.

Partial success is success: per-record failures are logged and do not fail
the run. The exit code is non-zero only when the run cannot start at all.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.New(cfgFileName, dryRun).Run(ctx)
	},
}

func main() {
	rootCmd.Flags().StringVarP(&cfgFileName, "config", "c", "config.yml", "Path to config file")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and log the plan without writing anything")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package cmd defines the CLI commands for the kirjasto-harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kirjasto-harvester",
		Short: "Harvests a hierarchical article catalog into Postgres",
		Long: `kirjasto-harvester walks a medical article catalog top-down: it discovers
the category menu, expands each subcategory through the site's list API, and
fetches every article it finds. Article bodies are segmented along their
headings and persisted to a two-table schema with content deduplication, so
repeated harvests and cross-listed articles never store the same body twice.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")
	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute runs the CLI. It cancels the command context on SIGINT/SIGTERM so
// an in-flight harvest can wind down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/marl"
)

var (
	watch        bool
	syncInterval time.Duration
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the mirror with the note service",
	Long: `Run one reconciliation cycle: download remote changes, push file edits,
and park conflicting versions. With --watch the command keeps running,
reacting to file edits as they happen and cycling on a fixed interval.`,
	Run: func(cmd *cobra.Command, args []string) {
		app := openMirror(
			marl.WithSyncInterval(syncInterval),
			marl.WithMustExist(true),
		)

		ctx := cmd.Context()
		if err := app.Bootstrap(ctx); err != nil {
			fatal("Failed to bootstrap", err)
		}

		if watch {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Println("Watching for changes. Ctrl+C to stop.")
			if err := app.Engine.Run(ctx); err != nil {
				fatal("Sync loop failed", err)
			}
			return
		}

		fmt.Println("Syncing...")
		if err := app.Engine.Cycle(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Sync failed: %v\n", err)
			fmt.Println("Tip: Run again with -v for details. Conflicted notes keep a .local copy next to the live file.")
			os.Exit(1)
		}
		if err := app.Close(); err != nil {
			fatal("Failed to persist state", err)
		}

		fmt.Println("Sync completed successfully.")
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&watch, "watch", false, "Keep running and react to file edits")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "Full cycle cadence in watch mode (default 10s)")
}

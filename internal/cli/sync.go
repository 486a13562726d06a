// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ergosync/ergosync/internal/logging"
)

// NewSyncCommand creates the sync command: one reconciliation cycle, then
// exit.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation cycle and exit",
		Long: `Fetch recent activities from Peloton and Garmin, match and merge them,
record the outcome in the ledger and publish eligible activities to
Strava. Exits non-zero when the cycle fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			manager, store, err := buildManager(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logging.Warn().Err(err).Msg("failed to close ledger")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, err := manager.RunCycle(ctx)
			if err != nil {
				return fmt.Errorf("sync cycle: %w", err)
			}

			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"cycle %s completed in %s\n  matched: %d\n  standalone peloton: %d\n  standalone garmin: %d\n  published to strava: %d\n",
				stats.CycleID, stats.Duration.Round(time.Millisecond),
				stats.Matched, stats.StandalonePeloton, stats.StandaloneGarmin, stats.PublishedStrava)
			return nil
		},
	}
}

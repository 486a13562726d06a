// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package cli

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ergosync/ergosync/internal/ledger"
	"github.com/ergosync/ergosync/internal/logging"
)

// statusOutput is the status command payload.
type statusOutput struct {
	Standalone int        `json:"standalone"`
	Merged     int        `json:"merged"`
	Synced     int        `json:"synced"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
}

// NewStatusCommand creates the status command: a summary of the ledger.
// The ledger is opened directly, so the daemon must not be running
// against the same path.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the processing ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			store, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logging.Warn().Err(err).Msg("failed to close ledger")
				}
			}()

			ctx := cmd.Context()
			counts, err := store.CountByStatus(ctx)
			if err != nil {
				return err
			}

			out := statusOutput{
				Standalone: counts[ledger.StatusStandalone],
				Merged:     counts[ledger.StatusMerged],
				Synced:     counts[ledger.StatusSynced],
			}
			if last, err := store.LastSyncTime(ctx); err == nil && !last.IsZero() {
				out.LastSync = &last
			}

			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "standalone: %d\nmerged (awaiting strava): %d\nsynced: %d\n", out.Standalone, out.Merged, out.Synced)
			if out.LastSync != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "last sync: %s\n", out.LastSync.Format(time.RFC3339))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "last sync: never")
			}
			return nil
		},
	}
}

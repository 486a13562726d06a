// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ergosync/ergosync/internal/api"
	"github.com/ergosync/ergosync/internal/logging"
	"github.com/ergosync/ergosync/internal/supervisor"
)

// NewServeCommand creates the serve command: the supervised daemon with
// the scheduled sync loop and the status HTTP listener.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon with scheduled cycles",
		Long: `Run Ergosync as a long-lived daemon. A first cycle runs immediately,
then one per configured interval. A local HTTP listener exposes health,
ledger status, a manual trigger and Prometheus metrics.`,
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

			router := api.NewRouter(api.NewHandler(store, manager))
			server := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:      router.Setup(),
				ReadTimeout:  cfg.Server.Timeout,
				WriteTimeout: cfg.Server.Timeout,
			}

			tree := supervisor.NewTree(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
			tree.Add(supervisor.NewSyncService(manager))
			tree.Add(supervisor.NewHTTPService(server, cfg.Server.Timeout))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.Info().
				Str("addr", server.Addr).
				Dur("interval", cfg.Sync.Interval).
				Msg("ergosync daemon starting")

			if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("supervisor: %w", err)
			}
			logging.Info().Msg("ergosync daemon stopped")
			return nil
		},
	}
}

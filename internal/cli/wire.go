// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package cli

import (
	"github.com/ergosync/ergosync/internal/clients"
	"github.com/ergosync/ergosync/internal/config"
	"github.com/ergosync/ergosync/internal/ledger"
	syncpkg "github.com/ergosync/ergosync/internal/sync"
)

// buildManager opens the ledger and wires the circuit-broken clients into
// a sync manager. The caller owns closing the returned ledger.
func buildManager(cfg *config.Config) (*syncpkg.Manager, *ledger.Ledger, error) {
	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, nil, err
	}

	peloton := clients.NewPelotonBreaker(clients.NewPelotonClient(
		cfg.Peloton.BaseURL, cfg.Peloton.Username, cfg.Peloton.Password,
		cfg.Peloton.Timeout, store,
	))
	var garminClient *clients.GarminClient
	if cfg.Garmin.UseTokens {
		garminClient = clients.NewGarminTokenClient(
			cfg.Garmin.BaseURL, cfg.Garmin.TokenPath, cfg.Garmin.Timeout,
		)
	} else {
		garminClient = clients.NewGarminCredentialClient(
			cfg.Garmin.BaseURL, cfg.Garmin.Username, cfg.Garmin.Password,
			cfg.Garmin.Timeout, store,
		)
	}
	garmin := clients.NewGarminBreaker(garminClient)
	strava := clients.NewStravaBreaker(clients.NewStravaClient(
		cfg.Strava.BaseURL, cfg.Strava.ClientID, cfg.Strava.ClientSecret,
		cfg.Strava.RefreshToken, cfg.Strava.AccessToken,
		cfg.Strava.Timeout, store,
	))

	manager := syncpkg.NewManager(cfg.Sync, peloton, garmin, strava, store)
	return manager, store, nil
}

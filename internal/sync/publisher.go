// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package sync

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ergosync/ergosync/internal/clients"
	"github.com/ergosync/ergosync/internal/ledger"
	"github.com/ergosync/ergosync/internal/merging"
	"github.com/ergosync/ergosync/internal/metrics"
	"github.com/ergosync/ergosync/internal/models"
)

// publishPending is the stage-2 driver: it scans the ledger for merged
// entries not yet published to Strava, applies the eligibility gates and
// uploads the ones that qualify.
//
// The ledger stores only identities and timestamps, so activity details
// are recovered by re-fetching the recent Peloton window. Entries whose
// workout has aged out of that window are skipped for the cycle. Only
// ledger failures abort the scan.
func (m *Manager) publishPending(ctx context.Context, log zerolog.Logger) (int, error) {
	pending, err := m.store.EntriesAwaitingStage2(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	log.Info().Int("pending", len(pending)).Msg("checking activities for strava publication")

	recent, err := m.peloton.FetchRecentWorkouts(ctx, m.cfg.Stage2FetchLimit)
	if err != nil {
		log.Warn().Err(err).Msg("peloton fetch for strava publication failed, deferring to next cycle")
		return 0, nil
	}
	byID := make(map[string]models.PelotonActivity, len(recent))
	for _, a := range recent {
		byID[a.ID] = a
	}

	published := 0
	for _, entry := range pending {
		if entry.PelotonID == "" {
			continue
		}
		activity, ok := byID[entry.PelotonID]
		if !ok {
			log.Debug().Str("id", entry.ID).Msg("workout no longer in recent window, skipping")
			continue
		}
		ok, err := m.publishEntry(ctx, log, entry, activity)
		if err != nil {
			return published, err
		}
		if ok {
			published++
		}
	}
	return published, nil
}

// publishEntry applies the eligibility gates to one entry and uploads it
// when they all pass. Returns whether the entry was published; only a
// ledger failure is returned as an error.
func (m *Manager) publishEntry(ctx context.Context, log zerolog.Logger, entry ledger.Entry, activity models.PelotonActivity) (bool, error) {
	entryLog := log.With().Str("id", entry.ID).Logger()

	activityType := merging.MapActivityType(activity.Discipline)
	if activityType != models.TypeRun && activityType != models.TypeBike {
		entryLog.Debug().Str("type", string(activityType)).Msg("activity type not published to strava")
		return false, nil
	}
	if activity.Duration < int(m.cfg.StravaMinDuration.Seconds()) {
		entryLog.Debug().Int("duration", activity.Duration).Msg("activity too short for strava")
		return false, nil
	}
	if m.now().Sub(activity.EndTime) < m.cfg.StravaWait {
		entryLog.Debug().Time("end_time", activity.EndTime).Msg("activity still inside strava waiting period")
		return false, nil
	}

	canonical := models.CanonicalActivity{
		ID:        entry.ID,
		Name:      activity.Name,
		Type:      activityType,
		StartTime: activity.StartTime,
		EndTime:   activity.EndTime,
		Duration:  activity.Duration,
		PelotonID: activity.ID,
		GarminID:  entry.GarminID,
		Summary: models.Summary{
			AvgHeartRate:  activity.AvgHeartRate,
			AvgCadence:    activity.AvgCadence,
			AvgSpeed:      activity.AvgSpeed,
			AvgPower:      activity.AvgPower,
			TotalDistance: activity.Distance,
			TotalCalories: activity.Calories,
		},
	}
	tcx, err := merging.BuildTCX(canonical)
	if err != nil {
		entryLog.Error().Err(err).Msg("tcx generation for strava failed")
		metrics.PublishAttempts.WithLabelValues("strava", "transient").Inc()
		return false, nil
	}

	if err := m.strava.Upload(ctx, tcx, activity.Name+".tcx"); err != nil {
		var rejected *clients.RejectedError
		if errors.As(err, &rejected) {
			entryLog.Warn().Err(err).Msg("strava rejected upload, will retry next cycle")
			metrics.PublishAttempts.WithLabelValues("strava", "rejected").Inc()
		} else {
			entryLog.Warn().Err(err).Msg("strava upload failed")
			metrics.PublishAttempts.WithLabelValues("strava", "transient").Inc()
		}
		return false, nil
	}

	if _, err := m.store.MarkSynced(ctx, entry.ID, m.now().UTC()); err != nil {
		metrics.LedgerWriteErrors.Inc()
		return false, err
	}
	metrics.PublishAttempts.WithLabelValues("strava", "success").Inc()
	entryLog.Info().Msg("activity published to strava")
	return true, nil
}

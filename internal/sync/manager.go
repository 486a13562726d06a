// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ergosync/ergosync/internal/clients"
	"github.com/ergosync/ergosync/internal/config"
	"github.com/ergosync/ergosync/internal/ledger"
	"github.com/ergosync/ergosync/internal/logging"
	"github.com/ergosync/ergosync/internal/matching"
	"github.com/ergosync/ergosync/internal/merging"
	"github.com/ergosync/ergosync/internal/metrics"
	"github.com/ergosync/ergosync/internal/models"
)

// ErrCycleInProgress is returned when a cycle is triggered while another
// is still running. Cycles are strictly sequential.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Manager owns the clients, matcher and ledger handle and drives the
// reconciliation cycle.
type Manager struct {
	cfg     config.SyncConfig
	peloton PelotonSource
	garmin  GarminSource
	strava  StravaPublisher
	store   *ledger.Ledger
	matcher *matching.Matcher

	// now is replaceable in tests.
	now func() time.Time

	cycleMu sync.Mutex
}

// NewManager wires a Manager from its collaborators.
func NewManager(cfg config.SyncConfig, peloton PelotonSource, garmin GarminSource, strava StravaPublisher, store *ledger.Ledger) *Manager {
	return &Manager{
		cfg:     cfg,
		peloton: peloton,
		garmin:  garmin,
		strava:  strava,
		store:   store,
		matcher: matching.New(cfg.MatchTimeWindow),
		now:     time.Now,
	}
}

// CycleStats summarizes one completed cycle.
type CycleStats struct {
	CycleID           string        `json:"cycle_id"`
	Matched           int           `json:"matched"`
	StandalonePeloton int           `json:"standalone_peloton"`
	StandaloneGarmin  int           `json:"standalone_garmin"`
	PublishedStrava   int           `json:"published_strava"`
	Duration          time.Duration `json:"duration"`
}

// RunCycle executes one reconciliation cycle. Concurrent calls are
// rejected with ErrCycleInProgress. A ledger failure aborts the cycle;
// remote failures degrade per record or per source.
func (m *Manager) RunCycle(ctx context.Context) (CycleStats, error) {
	if !m.cycleMu.TryLock() {
		return CycleStats{}, ErrCycleInProgress
	}
	defer m.cycleMu.Unlock()

	stats := CycleStats{CycleID: uuid.New().String()}
	log := logging.With().Str("cycle_id", stats.CycleID).Logger()
	started := m.now()
	log.Info().Msg("sync cycle started")

	err := m.runCycle(ctx, log, &stats)
	stats.Duration = m.now().Sub(started)
	metrics.SyncCycleDuration.Observe(stats.Duration.Seconds())

	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("failure").Inc()
		log.Error().Err(err).Dur("duration", stats.Duration).Msg("sync cycle failed")
		return stats, err
	}

	metrics.SyncCyclesTotal.WithLabelValues("success").Inc()
	log.Info().
		Int("matched", stats.Matched).
		Int("standalone_peloton", stats.StandalonePeloton).
		Int("standalone_garmin", stats.StandaloneGarmin).
		Int("published_strava", stats.PublishedStrava).
		Dur("duration", stats.Duration).
		Msg("sync cycle completed")
	return stats, nil
}

func (m *Manager) runCycle(ctx context.Context, log zerolog.Logger, stats *CycleStats) error {
	pelotons, err := m.fetchPeloton(ctx, log)
	if err != nil {
		return err
	}
	garmins, err := m.fetchGarmin(ctx, log)
	if err != nil {
		return err
	}

	newPelotons, err := m.unprocessedPeloton(ctx, pelotons)
	if err != nil {
		return err
	}
	newGarmins, err := m.unprocessedGarmin(ctx, garmins)
	if err != nil {
		return err
	}
	log.Info().Int("peloton", len(newPelotons)).Int("garmin", len(newGarmins)).Msg("new activities found")

	result := m.matcher.Match(newPelotons, newGarmins)

	for _, cand := range result.Matches {
		if err := m.processMatch(ctx, log, cand); err != nil {
			return err
		}
		stats.Matched++
	}

	for _, p := range result.UnmatchedPeloton {
		if err := m.recordStandalone(ctx, merging.WrapPeloton(p, nil), "peloton"); err != nil {
			return err
		}
		stats.StandalonePeloton++
	}
	for _, g := range result.UnmatchedGarmin {
		if err := m.recordStandalone(ctx, merging.WrapGarmin(g, nil), "garmin"); err != nil {
			return err
		}
		stats.StandaloneGarmin++
	}

	published, err := m.publishPending(ctx, log)
	if err != nil {
		return err
	}
	stats.PublishedStrava = published

	if err := m.store.SetLastSyncTime(ctx, m.now().UTC()); err != nil {
		return err
	}
	m.updateLedgerGauges(ctx)
	return nil
}

// fetchPeloton pulls the recent window from the primary origin. A
// transient failure yields an empty set so the cycle can continue with
// the other source; anything else fails the cycle.
func (m *Manager) fetchPeloton(ctx context.Context, log zerolog.Logger) ([]models.PelotonActivity, error) {
	activities, err := m.peloton.FetchRecentWorkouts(ctx, m.cfg.FetchLimit)
	if err != nil {
		if isTransient(err) {
			log.Warn().Err(err).Msg("peloton fetch failed, continuing without peloton activities")
			return nil, nil
		}
		return nil, fmt.Errorf("fetch peloton workouts: %w", err)
	}
	metrics.ActivitiesFetched.WithLabelValues("peloton").Add(float64(len(activities)))
	return activities, nil
}

func (m *Manager) fetchGarmin(ctx context.Context, log zerolog.Logger) ([]models.GarminActivity, error) {
	activities, err := m.garmin.FetchRecentActivities(ctx, m.cfg.FetchLimit)
	if err != nil {
		if isTransient(err) {
			log.Warn().Err(err).Msg("garmin fetch failed, continuing without garmin activities")
			return nil, nil
		}
		return nil, fmt.Errorf("fetch garmin activities: %w", err)
	}
	metrics.ActivitiesFetched.WithLabelValues("garmin").Add(float64(len(activities)))
	return activities, nil
}

func isTransient(err error) bool {
	var transient *clients.TransientError
	return errors.As(err, &transient)
}

func (m *Manager) unprocessedPeloton(ctx context.Context, activities []models.PelotonActivity) ([]models.PelotonActivity, error) {
	fresh := make([]models.PelotonActivity, 0, len(activities))
	for _, a := range activities {
		seen, err := m.store.IsPelotonProcessed(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if !seen {
			fresh = append(fresh, a)
		}
	}
	return fresh, nil
}

func (m *Manager) unprocessedGarmin(ctx context.Context, activities []models.GarminActivity) ([]models.GarminActivity, error) {
	fresh := make([]models.GarminActivity, 0, len(activities))
	for _, a := range activities {
		seen, err := m.store.IsGarminProcessed(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if !seen {
			fresh = append(fresh, a)
		}
	}
	return fresh, nil
}

// processMatch merges one accepted pair, attempts the stage-1 upload and
// records the entry. Sample fetch failures degrade the merge to summary
// only; an upload failure leaves the stage-1 timestamp unset so the entry
// still advances to merged. Only a ledger write failure is returned.
func (m *Manager) processMatch(ctx context.Context, log zerolog.Logger, cand models.MatchCandidate) error {
	pairLog := log.With().Str("peloton_id", cand.Peloton.ID).Str("garmin_id", cand.Garmin.ID).Logger()

	pelotonSamples, err := m.peloton.FetchPerformance(ctx, cand.Peloton.ID, cand.Peloton.StartTime)
	if err != nil {
		pairLog.Warn().Err(err).Msg("peloton performance fetch failed, merging without peloton samples")
		pelotonSamples = nil
	}
	garminSamples, err := m.garmin.FetchSamples(ctx, cand.Garmin.ID)
	if err != nil {
		pairLog.Warn().Err(err).Msg("garmin sample fetch failed, merging without garmin samples")
		garminSamples = nil
	}

	merged := merging.Merge(cand, pelotonSamples, garminSamples)
	metrics.ActivitiesMatched.WithLabelValues(string(cand.Confidence)).Inc()

	now := m.now().UTC()
	entry := ledger.Entry{
		ID:          merged.ID,
		PelotonID:   cand.Peloton.ID,
		GarminID:    cand.Garmin.ID,
		Status:      ledger.StatusMerged,
		ProcessedAt: now,
		MergedAt:    &now,
	}

	if uploadedAt, ok := m.uploadToGarmin(ctx, pairLog, merged); ok {
		entry.UploadedAt = &uploadedAt
	}

	if err := m.store.Upsert(ctx, entry); err != nil {
		metrics.LedgerWriteErrors.Inc()
		return err
	}
	pairLog.Info().Str("id", merged.ID).Str("confidence", string(cand.Confidence)).Msg("merged activity recorded")
	return nil
}

// uploadToGarmin performs the stage-1 publication. Failure is reported
// but never blocks the merged entry.
func (m *Manager) uploadToGarmin(ctx context.Context, log zerolog.Logger, merged models.CanonicalActivity) (time.Time, bool) {
	tcx, err := merging.BuildTCX(merged)
	if err != nil {
		log.Error().Err(err).Msg("tcx generation failed, skipping garmin upload")
		metrics.PublishAttempts.WithLabelValues("garmin", "transient").Inc()
		return time.Time{}, false
	}

	if err := m.garmin.Upload(ctx, tcx, merged.Name); err != nil {
		var rejected *clients.RejectedError
		if errors.As(err, &rejected) {
			log.Warn().Err(err).Msg("garmin rejected merged activity upload")
			metrics.PublishAttempts.WithLabelValues("garmin", "rejected").Inc()
		} else {
			log.Warn().Err(err).Msg("garmin upload failed")
			metrics.PublishAttempts.WithLabelValues("garmin", "transient").Inc()
		}
		return time.Time{}, false
	}

	metrics.PublishAttempts.WithLabelValues("garmin", "success").Inc()
	return m.now().UTC(), true
}

// recordStandalone writes a terminal ledger entry for an activity that
// exists in only one origin.
func (m *Manager) recordStandalone(ctx context.Context, canonical models.CanonicalActivity, source string) error {
	entry := ledger.Entry{
		ID:          canonical.ID,
		PelotonID:   canonical.PelotonID,
		GarminID:    canonical.GarminID,
		Status:      ledger.StatusStandalone,
		ProcessedAt: m.now().UTC(),
	}
	if err := m.store.Upsert(ctx, entry); err != nil {
		metrics.LedgerWriteErrors.Inc()
		return err
	}
	metrics.ActivitiesStandalone.WithLabelValues(source).Inc()
	logging.Debug().Str("id", entry.ID).Msg("standalone activity recorded")
	return nil
}

// Run executes an immediate cycle and then one per configured interval
// until ctx is cancelled. Cycle failures are logged and the schedule
// continues; the next interval usually clears a remote outage.
func (m *Manager) Run(ctx context.Context) error {
	if _, err := m.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("initial sync cycle failed")
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("scheduled sync cycle failed")
			}
		}
	}
}

func (m *Manager) updateLedgerGauges(ctx context.Context) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to count ledger entries")
		return
	}
	for _, status := range []ledger.Status{ledger.StatusStandalone, ledger.StatusMerged, ledger.StatusSynced} {
		metrics.LedgerEntries.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

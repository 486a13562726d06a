// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ergosync/ergosync/internal/clients"
	"github.com/ergosync/ergosync/internal/config"
	"github.com/ergosync/ergosync/internal/ledger"
	"github.com/ergosync/ergosync/internal/models"
)

var testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type fakePeloton struct {
	workouts   []models.PelotonActivity
	fetchErr   error
	samples    map[string][]models.Sample
	sampleErr  error
	fetchCalls int
}

func (f *fakePeloton) FetchRecentWorkouts(ctx context.Context, limit int) ([]models.PelotonActivity, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.workouts, nil
}

func (f *fakePeloton) FetchPerformance(ctx context.Context, workoutID string, start time.Time) ([]models.Sample, error) {
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	return f.samples[workoutID], nil
}

type fakeGarmin struct {
	activities []models.GarminActivity
	fetchErr   error
	samples    map[string][]models.Sample
	uploadErr  error
	uploads    [][]byte
}

func (f *fakeGarmin) FetchRecentActivities(ctx context.Context, limit int) ([]models.GarminActivity, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.activities, nil
}

func (f *fakeGarmin) FetchSamples(ctx context.Context, activityID string) ([]models.Sample, error) {
	return f.samples[activityID], nil
}

func (f *fakeGarmin) Upload(ctx context.Context, tcx []byte, name string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, tcx)
	return nil
}

type fakeStrava struct {
	uploadErr error
	uploads   []string
}

func (f *fakeStrava) Upload(ctx context.Context, tcx []byte, fileName string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, fileName)
	return nil
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:          2 * time.Hour,
		FetchLimit:        20,
		MatchTimeWindow:   30 * time.Minute,
		StravaMinDuration: 25 * time.Minute,
		StravaWait:        90 * time.Minute,
		Stage2FetchLimit:  50,
	}
}

func newTestManager(t *testing.T, peloton *fakePeloton, garmin *fakeGarmin, strava *fakeStrava) (*Manager, *ledger.Ledger) {
	t.Helper()
	store, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(testSyncConfig(), peloton, garmin, strava, store)
	m.now = func() time.Time { return testStart.Add(time.Hour) }
	return m, store
}

func rideWorkout(id string, start time.Time) models.PelotonActivity {
	return models.PelotonActivity{
		ID:         id,
		Name:       "Morning Ride",
		Discipline: "cycling",
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Duration:   1800,
		AvgPower:   models.Float64(175),
	}
}

func watchActivity(id string, start time.Time) models.GarminActivity {
	return models.GarminActivity{
		ID:           id,
		Name:         "Indoor Cycling",
		TypeKey:      "indoor_cycling",
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		Duration:     1800,
		MaxHeartRate: models.Float64(168),
	}
}

func TestRunCycleMergesAndUploads(t *testing.T) {
	peloton := &fakePeloton{
		workouts: []models.PelotonActivity{rideWorkout("pw1", testStart)},
		samples: map[string][]models.Sample{
			"pw1": {{Timestamp: testStart, Power: models.Float64(180)}},
		},
	}
	garmin := &fakeGarmin{
		activities: []models.GarminActivity{watchActivity("ga1", testStart.Add(time.Minute))},
		samples: map[string][]models.Sample{
			"ga1": {{Timestamp: testStart, HeartRate: models.Float64(141)}},
		},
	}
	strava := &fakeStrava{}
	m, store := newTestManager(t, peloton, garmin, strava)

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Zero(t, stats.StandalonePeloton)
	assert.Zero(t, stats.StandaloneGarmin)

	entry, err := store.FindByID(context.Background(), models.MergedID("pw1", "ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMerged, entry.Status)
	assert.NotNil(t, entry.MergedAt)
	assert.NotNil(t, entry.UploadedAt)

	require.Len(t, garmin.uploads, 1)
	tcx := string(garmin.uploads[0])
	assert.Contains(t, tcx, "<Trackpoint>")
	assert.Contains(t, tcx, `Sport="Biking"`)

	last, err := store.LastSyncTime(context.Background())
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestRunCycleIdempotent(t *testing.T) {
	peloton := &fakePeloton{workouts: []models.PelotonActivity{rideWorkout("pw1", testStart)}}
	garmin := &fakeGarmin{activities: []models.GarminActivity{watchActivity("ga1", testStart.Add(time.Minute))}}
	m, store := newTestManager(t, peloton, garmin, &fakeStrava{})

	_, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Matched)
	assert.Zero(t, stats.StandalonePeloton)
	assert.Zero(t, stats.StandaloneGarmin)

	// Exactly one merged upload across both cycles.
	assert.Len(t, garmin.uploads, 1)

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[ledger.StatusMerged])
}

func TestRunCycleRecordsStandalones(t *testing.T) {
	peloton := &fakePeloton{workouts: []models.PelotonActivity{rideWorkout("pw1", testStart)}}
	garmin := &fakeGarmin{activities: []models.GarminActivity{watchActivity("ga1", testStart.Add(3*time.Hour))}}
	m, store := newTestManager(t, peloton, garmin, &fakeStrava{})

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Matched)
	assert.Equal(t, 1, stats.StandalonePeloton)
	assert.Equal(t, 1, stats.StandaloneGarmin)

	ctx := context.Background()
	p, err := store.FindByID(ctx, models.StandalonePelotonID("pw1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusStandalone, p.Status)
	assert.Equal(t, "pw1", p.PelotonID)

	g, err := store.FindByID(ctx, models.StandaloneGarminID("ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusStandalone, g.Status)
	assert.Equal(t, "ga1", g.GarminID)

	// No stage-1 upload for standalones.
	assert.Empty(t, garmin.uploads)
}

func TestRunCycleStage1FailureLeavesTimestampUnset(t *testing.T) {
	peloton := &fakePeloton{workouts: []models.PelotonActivity{rideWorkout("pw1", testStart)}}
	garmin := &fakeGarmin{
		activities: []models.GarminActivity{watchActivity("ga1", testStart.Add(time.Minute))},
		uploadErr:  &clients.TransientError{Service: "garmin", Err: errors.New("boom")},
	}
	m, store := newTestManager(t, peloton, garmin, &fakeStrava{})

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)

	entry, err := store.FindByID(context.Background(), models.MergedID("pw1", "ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMerged, entry.Status)
	assert.Nil(t, entry.UploadedAt)
}

func TestRunCycleSampleFetchFailureDegrades(t *testing.T) {
	peloton := &fakePeloton{
		workouts:  []models.PelotonActivity{rideWorkout("pw1", testStart)},
		sampleErr: &clients.TransientError{Service: "peloton", Err: errors.New("boom")},
	}
	garmin := &fakeGarmin{activities: []models.GarminActivity{watchActivity("ga1", testStart.Add(time.Minute))}}
	m, store := newTestManager(t, peloton, garmin, &fakeStrava{})

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)

	entry, err := store.FindByID(context.Background(), models.MergedID("pw1", "ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMerged, entry.Status)

	// Summary-only document: no trackpoints.
	require.Len(t, garmin.uploads, 1)
	assert.NotContains(t, string(garmin.uploads[0]), "<Trackpoint>")
}

func TestRunCycleTransientFetchIsolation(t *testing.T) {
	peloton := &fakePeloton{fetchErr: &clients.TransientError{Service: "peloton", Err: errors.New("down")}}
	garmin := &fakeGarmin{activities: []models.GarminActivity{watchActivity("ga1", testStart)}}
	m, store := newTestManager(t, peloton, garmin, &fakeStrava{})

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Matched)
	assert.Equal(t, 1, stats.StandaloneGarmin)

	g, err := store.FindByID(context.Background(), models.StandaloneGarminID("ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusStandalone, g.Status)
}

func TestRunCycleNonTransientFetchFails(t *testing.T) {
	peloton := &fakePeloton{fetchErr: errors.New("peloton: unexpected HTTP 500")}
	garmin := &fakeGarmin{}
	m, _ := newTestManager(t, peloton, garmin, &fakeStrava{})

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	m, _ := newTestManager(t, &fakePeloton{}, &fakeGarmin{}, &fakeStrava{})

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	_, err := m.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
}

// seedMerged writes a merged entry 3 hours old so the stage-2 wait gate
// has passed by the manager's fixed clock.
func seedMerged(t *testing.T, store *ledger.Ledger, pelotonID, garminID string) ledger.Entry {
	t.Helper()
	mergedAt := testStart.Add(-2 * time.Hour)
	entry := ledger.Entry{
		ID:          models.MergedID(pelotonID, garminID),
		PelotonID:   pelotonID,
		GarminID:    garminID,
		Status:      ledger.StatusMerged,
		ProcessedAt: mergedAt,
		MergedAt:    &mergedAt,
	}
	require.NoError(t, store.Upsert(context.Background(), entry))
	return entry
}

func TestPublishPendingUploadsEligible(t *testing.T) {
	// Workout ended at testStart-90m; the manager clock sits at
	// testStart+1h, well past the waiting period.
	workout := rideWorkout("pw1", testStart.Add(-2*time.Hour))
	peloton := &fakePeloton{workouts: []models.PelotonActivity{workout}}
	strava := &fakeStrava{}
	m, store := newTestManager(t, peloton, &fakeGarmin{}, strava)
	seedMerged(t, store, "pw1", "ga1")

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PublishedStrava)

	require.Len(t, strava.uploads, 1)
	assert.Equal(t, "Morning Ride.tcx", strava.uploads[0])

	entry, err := store.FindByID(context.Background(), models.MergedID("pw1", "ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSynced, entry.Status)
	assert.NotNil(t, entry.SyncedAt)
}

func TestPublishPendingSkipsIneligibleType(t *testing.T) {
	workout := rideWorkout("pw1", testStart.Add(-2*time.Hour))
	workout.Discipline = "yoga"
	peloton := &fakePeloton{workouts: []models.PelotonActivity{workout}}
	strava := &fakeStrava{}
	m, store := newTestManager(t, peloton, &fakeGarmin{}, strava)
	seedMerged(t, store, "pw1", "ga1")

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PublishedStrava)
	assert.Empty(t, strava.uploads)

	entry, err := store.FindByID(context.Background(), models.MergedID("pw1", "ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMerged, entry.Status)
}

func TestPublishPendingSkipsShortActivity(t *testing.T) {
	workout := rideWorkout("pw1", testStart.Add(-2*time.Hour))
	workout.Duration = 20 * 60
	peloton := &fakePeloton{workouts: []models.PelotonActivity{workout}}
	strava := &fakeStrava{}
	m, store := newTestManager(t, peloton, &fakeGarmin{}, strava)
	seedMerged(t, store, "pw1", "ga1")

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PublishedStrava)
	assert.Empty(t, strava.uploads)
}

func TestPublishPendingRespectsWaitingPeriod(t *testing.T) {
	// Ends 30 minutes before the manager clock: inside the 90m wait.
	workout := rideWorkout("pw1", testStart.Add(30*time.Minute))
	peloton := &fakePeloton{workouts: []models.PelotonActivity{workout}}
	strava := &fakeStrava{}
	m, store := newTestManager(t, peloton, &fakeGarmin{}, strava)
	seedMerged(t, store, "pw1", "ga1")

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PublishedStrava)
	assert.Empty(t, strava.uploads)
}

func TestPublishPendingRejectedStaysMerged(t *testing.T) {
	workout := rideWorkout("pw1", testStart.Add(-2*time.Hour))
	peloton := &fakePeloton{workouts: []models.PelotonActivity{workout}}
	strava := &fakeStrava{uploadErr: &clients.RejectedError{Service: "strava", Status: 400, Body: "duplicate of activity 123"}}
	m, store := newTestManager(t, peloton, &fakeGarmin{}, strava)
	seedMerged(t, store, "pw1", "ga1")

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PublishedStrava)

	// The entry stays merged and is retried next cycle.
	entry, err := store.FindByID(context.Background(), models.MergedID("pw1", "ga1"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMerged, entry.Status)
	assert.Nil(t, entry.SyncedAt)
}

func TestPublishPendingSkipsAgedOutWorkouts(t *testing.T) {
	// The pending entry's workout is no longer in the recent window.
	peloton := &fakePeloton{workouts: []models.PelotonActivity{rideWorkout("other", testStart)}}
	strava := &fakeStrava{}
	m, store := newTestManager(t, peloton, &fakeGarmin{}, strava)
	seedMerged(t, store, "pw1", "ga1")

	stats, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PublishedStrava)
	assert.Empty(t, strava.uploads)
}

func TestPublishPendingNoPendingSkipsFetch(t *testing.T) {
	peloton := &fakePeloton{}
	m, _ := newTestManager(t, peloton, &fakeGarmin{}, &fakeStrava{})

	_, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	// One fetch for the cycle itself, none for stage-2.
	assert.Equal(t, 1, peloton.fetchCalls)
}

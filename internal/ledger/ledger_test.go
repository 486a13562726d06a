// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l, dir
}

func TestUpsertAndFind(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	entry := Entry{
		ID:          "merged_pw1_ga1",
		PelotonID:   "pw1",
		GarminID:    "ga1",
		Status:      StatusMerged,
		ProcessedAt: now,
		MergedAt:    &now,
	}
	require.NoError(t, l.Upsert(ctx, entry))

	got, err := l.FindByID(ctx, "merged_pw1_ga1")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, entry.PelotonID, got.PelotonID)
	assert.Equal(t, entry.GarminID, got.GarminID)
	assert.Equal(t, StatusMerged, got.Status)
	assert.True(t, got.ProcessedAt.Equal(now))
	require.NotNil(t, got.MergedAt)
	assert.True(t, got.MergedAt.Equal(now))
	assert.Nil(t, got.SyncedAt)

	byPeloton, err := l.FindByPelotonID(ctx, "pw1")
	require.NoError(t, err)
	assert.Equal(t, "merged_pw1_ga1", byPeloton.ID)

	byGarmin, err := l.FindByGarminID(ctx, "ga1")
	require.NoError(t, err)
	assert.Equal(t, "merged_pw1_ga1", byGarmin.ID)
}

func TestFindMissingReturnsErrNotFound(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.FindByPelotonID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.FindByGarminID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessedChecks(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	seen, err := l.IsPelotonProcessed(ctx, "pw1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, l.Upsert(ctx, Entry{
		ID:          "peloton_pw1",
		PelotonID:   "pw1",
		Status:      StatusStandalone,
		ProcessedAt: time.Now().UTC(),
	}))

	seen, err = l.IsPelotonProcessed(ctx, "pw1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = l.IsGarminProcessed(ctx, "ga1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEntriesAwaitingStage2(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, l.Upsert(ctx, Entry{ID: "peloton_a", PelotonID: "a", Status: StatusStandalone, ProcessedAt: now}))
	require.NoError(t, l.Upsert(ctx, Entry{ID: "merged_b_x", PelotonID: "b", GarminID: "x", Status: StatusMerged, ProcessedAt: now, MergedAt: &now}))
	require.NoError(t, l.Upsert(ctx, Entry{ID: "merged_c_y", PelotonID: "c", GarminID: "y", Status: StatusSynced, ProcessedAt: now, MergedAt: &now, SyncedAt: &now}))

	pending, err := l.EntriesAwaitingStage2(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "merged_b_x", pending[0].ID)
}

func TestMarkSynced(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, l.Upsert(ctx, Entry{ID: "merged_b_x", PelotonID: "b", GarminID: "x", Status: StatusMerged, ProcessedAt: now, MergedAt: &now}))

	syncedAt := now.Add(2 * time.Hour)
	updated, err := l.MarkSynced(ctx, "merged_b_x", syncedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, updated.Status)
	require.NotNil(t, updated.SyncedAt)
	assert.True(t, updated.SyncedAt.Equal(syncedAt))

	pending, err := l.EntriesAwaitingStage2(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkSyncedMissingEntry(t *testing.T) {
	l, _ := openTestLedger(t)

	_, err := l.MarkSynced(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByStatus(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, l.Upsert(ctx, Entry{ID: "peloton_a", PelotonID: "a", Status: StatusStandalone, ProcessedAt: now}))
	require.NoError(t, l.Upsert(ctx, Entry{ID: "garmin_b", GarminID: "b", Status: StatusStandalone, ProcessedAt: now}))
	require.NoError(t, l.Upsert(ctx, Entry{ID: "merged_c_d", PelotonID: "c", GarminID: "d", Status: StatusMerged, ProcessedAt: now, MergedAt: &now}))

	counts, err := l.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[StatusStandalone])
	assert.Equal(t, 1, counts[StatusMerged])
	assert.Equal(t, 0, counts[StatusSynced])
}

func TestLastSyncTime(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	last, err := l.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	at := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)
	require.NoError(t, l.SetLastSyncTime(ctx, at))

	last, err = l.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(at))
}

func TestCredentialRoundTrip(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	type token struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}

	var missing token
	err := l.Credential(ctx, "strava", &missing)
	assert.ErrorIs(t, err, ErrNotFound)

	stored := token{AccessToken: "abc123", ExpiresAt: 1765000000}
	require.NoError(t, l.SetCredential(ctx, "strava", stored))

	var got token
	require.NoError(t, l.Credential(ctx, "strava", &got))
	assert.Equal(t, stored, got)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	l, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.Upsert(ctx, Entry{ID: "merged_p_g", PelotonID: "p", GarminID: "g", Status: StatusMerged, ProcessedAt: now, MergedAt: &now}))
	require.NoError(t, l.SetLastSyncTime(ctx, now))
	require.NoError(t, l.Close())

	l, err = Open(dir)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	got, err := l.FindByID(ctx, "merged_p_g")
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, got.Status)

	seen, err := l.IsPelotonProcessed(ctx, "p")
	require.NoError(t, err)
	assert.True(t, seen)

	last, err := l.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(now))
}

func TestUpsertOverwrites(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := Entry{ID: "merged_p_g", PelotonID: "p", GarminID: "g", Status: StatusMerged, ProcessedAt: now, MergedAt: &now}
	require.NoError(t, l.Upsert(ctx, entry))

	uploaded := now.Add(time.Minute)
	entry.UploadedAt = &uploaded
	require.NoError(t, l.Upsert(ctx, entry))

	got, err := l.FindByID(ctx, "merged_p_g")
	require.NoError(t, err)
	require.NotNil(t, got.UploadedAt)
	assert.True(t, got.UploadedAt.Equal(uploaded))
}

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ergosync/ergosync/internal/ledger"
	"github.com/ergosync/ergosync/internal/models"
)

func setupRouter(t *testing.T) (http.Handler, *ledger.Ledger) {
	t.Helper()
	store, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewRouter(NewHandler(store, nil)).Setup(), store
}

func TestHealthz(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsLedgerCounts(t *testing.T) {
	router, store := setupRouter(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, ledger.Entry{
		ID:          models.StandalonePelotonID("pw1"),
		PelotonID:   "pw1",
		Status:      ledger.StatusStandalone,
		ProcessedAt: now,
	}))
	require.NoError(t, store.Upsert(ctx, ledger.Entry{
		ID:          models.MergedID("pw2", "ga2"),
		PelotonID:   "pw2",
		GarminID:    "ga2",
		Status:      ledger.StatusMerged,
		ProcessedAt: now,
		MergedAt:    &now,
	}))
	require.NoError(t, store.SetLastSyncTime(ctx, now))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Standalone)
	assert.Equal(t, 1, resp.Merged)
	assert.Zero(t, resp.Synced)
	require.NotNil(t, resp.LastSync)
	assert.WithinDuration(t, now, *resp.LastSync, time.Second)
}

func TestStatusOmitsLastSyncBeforeFirstCycle(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.LastSync)
}

func TestTriggerSyncWithoutManager(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "sync manager not running")
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

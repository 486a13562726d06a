// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ergosync/ergosync/internal/ledger"
	"github.com/ergosync/ergosync/internal/logging"
	syncpkg "github.com/ergosync/ergosync/internal/sync"
)

// Handler serves the status endpoints from the ledger and sync manager.
type Handler struct {
	store   *ledger.Ledger
	manager *syncpkg.Manager
}

// NewHandler builds a Handler. manager may be nil when the process runs
// without a cycle controller (status-only tooling).
func NewHandler(store *ledger.Ledger, manager *syncpkg.Manager) *Handler {
	return &Handler{store: store, manager: manager}
}

// StatusResponse is the /api/v1/status payload.
type StatusResponse struct {
	Standalone int        `json:"standalone"`
	Merged     int        `json:"merged"`
	Synced     int        `json:"synced"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports ledger counts and the last completed sync time.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}

	resp := StatusResponse{
		Standalone: counts[ledger.StatusStandalone],
		Merged:     counts[ledger.StatusMerged],
		Synced:     counts[ledger.StatusSynced],
	}
	if last, err := h.store.LastSyncTime(r.Context()); err == nil && !last.IsZero() {
		resp.LastSync = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerSync runs one cycle synchronously. A cycle already in flight
// answers 409 so callers cannot stack cycles.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		writeError(w, http.StatusServiceUnavailable, "sync manager not running")
		return
	}

	stats, err := h.manager.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, syncpkg.ErrCycleInProgress) {
			writeError(w, http.StatusConflict, "sync cycle already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, "sync cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

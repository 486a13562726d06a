// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync cycle metrics
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ergosync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	ActivitiesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_activities_fetched_total",
			Help: "Total activities fetched from remote sources",
		},
		[]string{"source"}, // "peloton", "garmin"
	)

	ActivitiesMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_activities_matched_total",
			Help: "Total accepted matches by confidence tier",
		},
		[]string{"confidence"}, // "high", "medium"
	)

	ActivitiesStandalone = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_activities_standalone_total",
			Help: "Total activities recorded as standalone",
		},
		[]string{"source"},
	)

	// Publication metrics
	PublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_publish_attempts_total",
			Help: "Total publication attempts by stage and outcome",
		},
		[]string{"stage", "outcome"}, // stage: "garmin", "strava"; outcome: "success", "transient", "rejected"
	)

	// Ledger metrics
	LedgerEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ergosync_ledger_entries",
			Help: "Current ledger entries by status",
		},
		[]string{"status"},
	)

	LedgerWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ergosync_ledger_write_errors_total",
			Help: "Total failed ledger writes",
		},
	)

	// Remote client metrics
	ClientRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_client_requests_total",
			Help: "Total remote API requests by client and outcome",
		},
		[]string{"client", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ergosync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"client"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ergosync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"client", "from", "to"},
	)
)

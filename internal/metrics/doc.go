// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package metrics exposes Prometheus collectors for sync cycles,
// matching, publication attempts and remote-client health.
package metrics

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package api exposes the local HTTP surface: health, ledger status,
// manual cycle trigger and Prometheus metrics.
package api

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package sync runs the reconciliation cycle: fetch recent activities from
// both origins, match and merge them, record the outcome in the ledger,
// and publish eligible activities downstream.
package sync

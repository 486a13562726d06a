// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package ledger is the durable processing ledger: the single source of
// truth for whether an activity has been handled, and the only state that
// survives across sync cycles and process restarts.
//
// The ledger is backed by BadgerDB with synchronous writes. Every
// mutating call commits before returning, so a crash immediately after a
// call never loses that entry's state; the durability unit is one ledger
// write. Entries are append-or-update only and never deleted.
package ledger

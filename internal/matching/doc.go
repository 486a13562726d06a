// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package matching pairs Peloton workouts against Garmin activities that
// describe the same real-world session.
//
// The matcher is a greedy single-pass algorithm: Peloton workouts are
// processed in input order, each claims its best-scoring unclaimed Garmin
// candidate, and a claimed Garmin activity is never reconsidered for a
// later workout even if that later workout would have scored higher
// against it. This bias is accepted: the heuristic targets single-session,
// same-day workouts where pairings rarely compete, not optimal bipartite
// assignment.
package matching

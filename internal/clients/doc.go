// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package clients implements the three remote-service clients: Peloton
// (primary workout source), Garmin Connect (secondary source and stage-1
// upload destination) and Strava (stage-2 upload destination).
//
// Each client carries a per-service rate limiter and bounded exponential
// backoff on HTTP 429. Failures are classified into the shared taxonomy
// (TransientError, AuthExpiredError, RejectedError) so the sync cycle can
// decide what aborts, what retries, and what merely logs.
package clients

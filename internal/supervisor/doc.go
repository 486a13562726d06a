// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package supervisor runs the long-lived services (sync loop, HTTP
// listener) under a suture supervision tree so a crash in one restarts
// that service without taking the process down.
package supervisor

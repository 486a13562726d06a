// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package models defines the data types shared across Ergosync components:
// source activities fetched from Peloton and Garmin Connect, match
// candidates produced by the matcher, and the canonical merged activity
// that is persisted and published downstream.
package models

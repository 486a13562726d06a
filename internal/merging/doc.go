// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

// Package merging combines a matched Peloton/Garmin pair into one
// canonical activity and renders canonical activities as TCX interchange
// documents.
//
// Merge precedence: Peloton is authoritative for timing and for every
// summary field it supplies; Garmin values are used only where Peloton's
// are absent. The one exception is max heart rate, which only the watch
// measures.
package merging

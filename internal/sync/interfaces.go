// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package sync

import (
	"context"
	"time"

	"github.com/ergosync/ergosync/internal/models"
)

// PelotonSource fetches workouts from the primary origin.
type PelotonSource interface {
	FetchRecentWorkouts(ctx context.Context, limit int) ([]models.PelotonActivity, error)
	FetchPerformance(ctx context.Context, workoutID string, start time.Time) ([]models.Sample, error)
}

// GarminSource fetches activities from the secondary origin, which also
// receives the stage-1 upload.
type GarminSource interface {
	FetchRecentActivities(ctx context.Context, limit int) ([]models.GarminActivity, error)
	FetchSamples(ctx context.Context, activityID string) ([]models.Sample, error)
	Upload(ctx context.Context, tcx []byte, name string) error
}

// StravaPublisher receives the stage-2 upload.
type StravaPublisher interface {
	Upload(ctx context.Context, tcx []byte, fileName string) error
}

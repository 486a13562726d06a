// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package merging

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ergosync/ergosync/internal/models"
)

func canonicalRide() models.CanonicalActivity {
	return models.CanonicalActivity{
		ID:        "merged_pw1_ga1",
		Name:      "30 min Power Zone Ride",
		Type:      models.TypeBike,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Duration:  1800,
		Summary: models.Summary{
			AvgHeartRate:  models.Float64(142.6),
			MaxHeartRate:  models.Float64(171.2),
			TotalDistance: models.Float64(14.2),
			TotalCalories: models.Float64(410.4),
		},
		Samples: []models.Sample{
			{
				Timestamp: start,
				HeartRate: models.Float64(120.4),
				Cadence:   models.Float64(82.6),
				Speed:     models.Float64(7.9),
				Power:     models.Float64(185.5),
			},
			{
				Timestamp: start.Add(5 * time.Second),
				HeartRate: models.Float64(124),
			},
		},
	}
}

func TestBuildTCXDocument(t *testing.T) {
	data, err := BuildTCX(canonicalRide())
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, xml.Header))
	assert.Contains(t, text, `xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2"`)
	assert.Contains(t, text, `xmlns="http://www.garmin.com/xmlschemas/ActivityExtension/v2"`)

	var doc tcxDatabase
	require.NoError(t, xml.Unmarshal(data, &doc))

	activity := doc.Activities.Activity
	assert.Equal(t, "Biking", activity.Sport)
	assert.Equal(t, "2026-03-14T10:00:00Z", activity.ID)

	lap := activity.Lap
	assert.Equal(t, "2026-03-14T10:00:00Z", lap.StartTime)
	assert.Equal(t, 1800, lap.TotalTimeSeconds)
	assert.Equal(t, "Active", lap.Intensity)
	assert.Equal(t, "Manual", lap.TriggerMethod)

	// km converts to meters, heart rates and calories round to integers.
	require.NotNil(t, lap.DistanceMeters)
	assert.InDelta(t, 14200, *lap.DistanceMeters, 0.001)
	require.NotNil(t, lap.Calories)
	assert.Equal(t, 410, *lap.Calories)
	require.NotNil(t, lap.AverageHeartRate)
	assert.Equal(t, 143, lap.AverageHeartRate.Value)
	require.NotNil(t, lap.MaximumHeartRate)
	assert.Equal(t, 171, lap.MaximumHeartRate.Value)

	require.NotNil(t, lap.Track)
	require.Len(t, lap.Track.Trackpoints, 2)

	first := lap.Track.Trackpoints[0]
	assert.Equal(t, "2026-03-14T10:00:00Z", first.Time)
	require.NotNil(t, first.HeartRateBpm)
	assert.Equal(t, 120, first.HeartRateBpm.Value)
	require.NotNil(t, first.Cadence)
	assert.Equal(t, 83, *first.Cadence)
	require.NotNil(t, first.Extensions)
	require.NotNil(t, first.Extensions.TPX.Speed)
	assert.InDelta(t, 7.9, *first.Extensions.TPX.Speed, 0.001)
	require.NotNil(t, first.Extensions.TPX.Watts)
	assert.Equal(t, 186, *first.Extensions.TPX.Watts)
}

func TestBuildTCXSparseSample(t *testing.T) {
	act := canonicalRide()
	act.Samples = []models.Sample{{Timestamp: start, HeartRate: models.Float64(118)}}

	data, err := BuildTCX(act)
	require.NoError(t, err)

	var doc tcxDatabase
	require.NoError(t, xml.Unmarshal(data, &doc))

	tp := doc.Activities.Activity.Lap.Track.Trackpoints[0]
	assert.Nil(t, tp.Cadence)
	assert.Nil(t, tp.Extensions)
	assert.Nil(t, tp.Position)
	assert.Nil(t, tp.DistanceMeters)

	text := string(data)
	assert.NotContains(t, text, "<Cadence>")
	assert.NotContains(t, text, "<TPX")
}

func TestBuildTCXSummaryOnly(t *testing.T) {
	act := canonicalRide()
	act.Samples = nil
	act.Summary = models.Summary{}

	data, err := BuildTCX(act)
	require.NoError(t, err)

	var doc tcxDatabase
	require.NoError(t, xml.Unmarshal(data, &doc))

	lap := doc.Activities.Activity.Lap
	assert.Nil(t, lap.Track)
	assert.Nil(t, lap.DistanceMeters)
	assert.Nil(t, lap.Calories)
	assert.Nil(t, lap.AverageHeartRate)
	assert.Equal(t, 1800, lap.TotalTimeSeconds)
}

func TestSportName(t *testing.T) {
	assert.Equal(t, "Running", SportName(models.TypeRun))
	assert.Equal(t, "Biking", SportName(models.TypeBike))
	assert.Equal(t, "Walking", SportName(models.TypeWalk))
	assert.Equal(t, "Other", SportName(models.TypeWorkout))
	assert.Equal(t, "Other", SportName(models.TypeYoga))
	assert.Equal(t, "Other", SportName(models.TypeMeditation))
}

func TestBuildTCXPositionAndAltitude(t *testing.T) {
	act := canonicalRide()
	act.Type = models.TypeRun
	act.Samples = []models.Sample{{
		Timestamp: start,
		Latitude:  models.Float64(51.5074),
		Longitude: models.Float64(-0.1278),
		Altitude:  models.Float64(11.5),
		Distance:  models.Float64(0.25),
	}}

	data, err := BuildTCX(act)
	require.NoError(t, err)

	var doc tcxDatabase
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, "Running", doc.Activities.Activity.Sport)

	tp := doc.Activities.Activity.Lap.Track.Trackpoints[0]
	require.NotNil(t, tp.Position)
	assert.InDelta(t, 51.5074, tp.Position.LatitudeDegrees, 0.0001)
	assert.InDelta(t, -0.1278, tp.Position.LongitudeDegrees, 0.0001)
	require.NotNil(t, tp.AltitudeMeters)
	assert.InDelta(t, 11.5, *tp.AltitudeMeters, 0.001)
	require.NotNil(t, tp.DistanceMeters)
	assert.InDelta(t, 250, *tp.DistanceMeters, 0.001)
}

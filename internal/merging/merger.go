// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package merging

import (
	"sort"
	"strings"
	"time"

	"github.com/ergosync/ergosync/internal/models"
)

// typeTable maps origin-specific activity labels into the canonical
// closed vocabulary. Lookup is case-insensitive; anything unlisted maps
// to workout.
var typeTable = map[string]models.ActivityType{
	"running":    models.TypeRun,
	"run":        models.TypeRun,
	"cycling":    models.TypeBike,
	"bike":       models.TypeBike,
	"walking":    models.TypeWalk,
	"strength":   models.TypeWorkout,
	"stretching": models.TypeWorkout,
	"cardio":     models.TypeWorkout,
	"yoga":       models.TypeYoga,
	"meditation": models.TypeMeditation,
}

// MapActivityType normalizes a free-text activity label.
func MapActivityType(label string) models.ActivityType {
	if t, ok := typeTable[strings.ToLower(label)]; ok {
		return t
	}
	return models.TypeWorkout
}

// Merge combines an accepted match into one canonical activity. The
// sample slices may be nil when the time-series fetch failed or was
// skipped; the canonical record then carries summary data only.
func Merge(cand models.MatchCandidate, pelotonSamples, garminSamples []models.Sample) models.CanonicalActivity {
	p, g := cand.Peloton, cand.Garmin

	name := p.Name
	if name == "" {
		name = g.Name
	}

	summary := models.Summary{
		AvgHeartRate:  firstOf(p.AvgHeartRate, g.AvgHeartRate),
		MaxHeartRate:  g.MaxHeartRate,
		AvgCadence:    firstOf(p.AvgCadence, g.AvgRunCadence, g.AvgBikeCad),
		AvgSpeed:      firstOf(p.AvgSpeed, g.AvgSpeed),
		AvgPower:      p.AvgPower,
		TotalDistance: firstOf(p.Distance, metersToKm(g.Distance)),
		TotalCalories: firstOf(p.Calories, g.Calories),
		TotalOutput:   p.TotalOutput,
	}

	return models.CanonicalActivity{
		ID:        models.MergedID(p.ID, g.ID),
		Name:      name,
		Type:      MapActivityType(p.Discipline),
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Duration:  p.Duration,
		PelotonID: p.ID,
		GarminID:  g.ID,
		Summary:   summary,
		Samples:   MergeSamples(pelotonSamples, garminSamples, p.StartTime),
	}
}

// WrapPeloton builds a canonical activity from an unmatched Peloton
// workout.
func WrapPeloton(p models.PelotonActivity, samples []models.Sample) models.CanonicalActivity {
	return models.CanonicalActivity{
		ID:        models.StandalonePelotonID(p.ID),
		Name:      p.Name,
		Type:      MapActivityType(p.Discipline),
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Duration:  p.Duration,
		PelotonID: p.ID,
		Summary: models.Summary{
			AvgHeartRate:  p.AvgHeartRate,
			AvgCadence:    p.AvgCadence,
			AvgSpeed:      p.AvgSpeed,
			AvgPower:      p.AvgPower,
			TotalDistance: p.Distance,
			TotalCalories: p.Calories,
			TotalOutput:   p.TotalOutput,
		},
		Samples: samples,
	}
}

// WrapGarmin builds a canonical activity from an unmatched Garmin
// activity.
func WrapGarmin(g models.GarminActivity, samples []models.Sample) models.CanonicalActivity {
	return models.CanonicalActivity{
		ID:        models.StandaloneGarminID(g.ID),
		Name:      g.Name,
		Type:      MapActivityType(g.TypeKey),
		StartTime: g.StartTime,
		EndTime:   g.EndTime,
		Duration:  g.Duration,
		GarminID:  g.ID,
		Summary: models.Summary{
			AvgHeartRate:  g.AvgHeartRate,
			MaxHeartRate:  g.MaxHeartRate,
			AvgCadence:    firstOf(g.AvgRunCadence, g.AvgBikeCad),
			AvgSpeed:      g.AvgSpeed,
			TotalDistance: metersToKm(g.Distance),
			TotalCalories: g.Calories,
		},
		Samples: samples,
	}
}

// MergeSamples merges two time-series keyed by absolute timestamp.
// Peloton samples are inserted first; Garmin samples at the same
// timestamp fill only still-missing fields and never overwrite a
// Peloton-supplied value. Garmin samples at new timestamps are inserted
// as-is. The result is sorted ascending by timestamp.
//
// Peloton samples carrying a zero timestamp are treated as offsets from
// start; absolute timestamps pass through unchanged.
func MergeSamples(peloton, garmin []models.Sample, start time.Time) []models.Sample {
	byTime := make(map[int64]*models.Sample, len(peloton)+len(garmin))
	order := make([]int64, 0, len(peloton)+len(garmin))

	for _, s := range peloton {
		s := s
		if s.Timestamp.IsZero() {
			s.Timestamp = start
		}
		key := s.Timestamp.Unix()
		if _, ok := byTime[key]; !ok {
			order = append(order, key)
		}
		byTime[key] = &s
	}

	for _, s := range garmin {
		s := s
		key := s.Timestamp.Unix()
		existing, ok := byTime[key]
		if !ok {
			byTime[key] = &s
			order = append(order, key)
			continue
		}
		fillMissing(existing, &s)
	}

	merged := make([]models.Sample, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byTime[key])
	}
	sortSamples(merged)
	return merged
}

// fillMissing copies fields from src into dst where dst has no value.
func fillMissing(dst, src *models.Sample) {
	if dst.HeartRate == nil {
		dst.HeartRate = src.HeartRate
	}
	if dst.Cadence == nil {
		dst.Cadence = src.Cadence
	}
	if dst.Speed == nil {
		dst.Speed = src.Speed
	}
	if dst.Power == nil {
		dst.Power = src.Power
	}
	if dst.Altitude == nil {
		dst.Altitude = src.Altitude
	}
	if dst.Distance == nil {
		dst.Distance = src.Distance
	}
	if dst.Latitude == nil {
		dst.Latitude = src.Latitude
		dst.Longitude = src.Longitude
	}
}

func sortSamples(samples []models.Sample) {
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
}

// firstOf returns the first non-nil value, or nil.
func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func metersToKm(m *float64) *float64 {
	if m == nil {
		return nil
	}
	km := *m / 1000
	return &km
}

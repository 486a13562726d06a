// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package models

import (
	"fmt"
	"time"
)

// ActivityType is the closed vocabulary canonical activities are mapped into.
// Source-specific labels (Peloton fitness disciplines, Garmin type keys) are
// normalized by the merger's type table; anything unrecognized becomes
// TypeWorkout.
type ActivityType string

const (
	TypeRun        ActivityType = "run"
	TypeBike       ActivityType = "bike"
	TypeWalk       ActivityType = "walk"
	TypeWorkout    ActivityType = "workout"
	TypeYoga       ActivityType = "yoga"
	TypeMeditation ActivityType = "meditation"
)

// PelotonActivity is a workout as reported by the Peloton API.
// It is the primary origin: its timing and summary fields win during merge.
// Distances are kilometers, speeds km/h, matching Peloton's own units.
type PelotonActivity struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Discipline   string    `json:"discipline"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     int       `json:"duration"` // seconds; 0 when unknown
	AvgHeartRate *float64  `json:"avg_heart_rate,omitempty"`
	AvgCadence   *float64  `json:"avg_cadence,omitempty"`
	AvgSpeed     *float64  `json:"avg_speed,omitempty"`
	AvgPower     *float64  `json:"avg_power,omitempty"`
	Distance     *float64  `json:"distance,omitempty"` // km
	Calories     *float64  `json:"calories,omitempty"`
	TotalOutput  *float64  `json:"total_output,omitempty"` // kJ
}

// GarminActivity is an activity as reported by Garmin Connect.
// It is the secondary origin: its fields fill gaps the primary left.
// Distances are meters and speeds m/s, matching the Garmin API.
type GarminActivity struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TypeKey       string    `json:"type_key"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Duration      int       `json:"duration"` // seconds; 0 when unknown
	AvgHeartRate  *float64  `json:"avg_heart_rate,omitempty"`
	MaxHeartRate  *float64  `json:"max_heart_rate,omitempty"`
	AvgRunCadence *float64  `json:"avg_run_cadence,omitempty"`
	AvgBikeCad    *float64  `json:"avg_bike_cadence,omitempty"`
	AvgSpeed      *float64  `json:"avg_speed,omitempty"` // m/s
	Distance      *float64  `json:"distance,omitempty"`  // meters
	Calories      *float64  `json:"calories,omitempty"`
}

// Sample is one point in an activity time-series. All metric fields are
// optional; absent fields stay absent through the merge and are omitted
// from the interchange document.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	HeartRate *float64  `json:"heart_rate,omitempty"`
	Cadence   *float64  `json:"cadence,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Power     *float64  `json:"power,omitempty"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Distance  *float64  `json:"distance,omitempty"` // km from activity start
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
}

// Summary holds the merged per-activity aggregates.
type Summary struct {
	AvgHeartRate  *float64 `json:"avg_heart_rate,omitempty"`
	MaxHeartRate  *float64 `json:"max_heart_rate,omitempty"`
	AvgCadence    *float64 `json:"avg_cadence,omitempty"`
	AvgSpeed      *float64 `json:"avg_speed,omitempty"`
	AvgPower      *float64 `json:"avg_power,omitempty"`
	TotalDistance *float64 `json:"total_distance,omitempty"` // km
	TotalCalories *float64 `json:"total_calories,omitempty"`
	TotalOutput   *float64 `json:"total_output,omitempty"` // kJ
}

// Confidence buckets a match score into an accept/reject gate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MatchCandidate pairs one Peloton workout with one Garmin activity.
// Ephemeral: produced and consumed within a single sync cycle.
type MatchCandidate struct {
	Peloton    PelotonActivity
	Garmin     GarminActivity
	Score      float64 // 0-100
	TimeScore  float64
	DurScore   float64
	TimeDiff   time.Duration // absolute start-time difference
	Confidence Confidence
}

// CanonicalActivity is the merged result of an accepted match, or a lone
// wrapper around a single unmatched source activity. Identity is a
// deterministic function of the contributing origin ids.
type CanonicalActivity struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      ActivityType `json:"type"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Duration  int          `json:"duration"` // seconds
	PelotonID string       `json:"peloton_id,omitempty"`
	GarminID  string       `json:"garmin_id,omitempty"`
	Summary   Summary      `json:"summary"`
	Samples   []Sample     `json:"samples,omitempty"`
}

// MergedID synthesizes the canonical identity for a matched pair.
func MergedID(pelotonID, garminID string) string {
	return fmt.Sprintf("merged_%s_%s", pelotonID, garminID)
}

// StandalonePelotonID synthesizes the canonical identity for an unmatched
// Peloton workout.
func StandalonePelotonID(pelotonID string) string {
	return "peloton_" + pelotonID
}

// StandaloneGarminID synthesizes the canonical identity for an unmatched
// Garmin activity.
func StandaloneGarminID(garminID string) string {
	return "garmin_" + garminID
}

// Float64 returns a pointer to v. Convenience for optional metric fields.
func Float64(v float64) *float64 { return &v }

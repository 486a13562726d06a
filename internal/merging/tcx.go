// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package merging

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"time"

	"github.com/ergosync/ergosync/internal/models"
)

// TCX namespaces. Garmin Connect and Strava both validate the root
// namespace, so these are part of the wire contract.
const (
	tcxNamespace = "http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2"
	tpxNamespace = "http://www.garmin.com/xmlschemas/ActivityExtension/v2"
)

// tcxDatabase is the document root.
type tcxDatabase struct {
	XMLName    xml.Name      `xml:"TrainingCenterDatabase"`
	Xmlns      string        `xml:"xmlns,attr"`
	Activities tcxActivities `xml:"Activities"`
}

type tcxActivities struct {
	Activity tcxActivity `xml:"Activity"`
}

type tcxActivity struct {
	Sport string `xml:"Sport,attr"`
	ID    string `xml:"Id"`
	Lap   tcxLap `xml:"Lap"`
}

type tcxLap struct {
	StartTime        string         `xml:"StartTime,attr"`
	TotalTimeSeconds int            `xml:"TotalTimeSeconds"`
	DistanceMeters   *float64       `xml:"DistanceMeters,omitempty"`
	Calories         *int           `xml:"Calories,omitempty"`
	AverageHeartRate *tcxHeartRate  `xml:"AverageHeartRateBpm,omitempty"`
	MaximumHeartRate *tcxHeartRate  `xml:"MaximumHeartRateBpm,omitempty"`
	Intensity        string         `xml:"Intensity"`
	TriggerMethod    string         `xml:"TriggerMethod"`
	Track            *tcxTrack      `xml:"Track,omitempty"`
}

type tcxHeartRate struct {
	Value int `xml:"Value"`
}

type tcxTrack struct {
	Trackpoints []tcxTrackpoint `xml:"Trackpoint"`
}

type tcxTrackpoint struct {
	Time           string         `xml:"Time"`
	Position       *tcxPosition   `xml:"Position,omitempty"`
	AltitudeMeters *float64       `xml:"AltitudeMeters,omitempty"`
	DistanceMeters *float64       `xml:"DistanceMeters,omitempty"`
	HeartRateBpm   *tcxHeartRate  `xml:"HeartRateBpm,omitempty"`
	Cadence        *int           `xml:"Cadence,omitempty"`
	Extensions     *tcxExtensions `xml:"Extensions,omitempty"`
}

type tcxPosition struct {
	LatitudeDegrees  float64 `xml:"LatitudeDegrees"`
	LongitudeDegrees float64 `xml:"LongitudeDegrees"`
}

type tcxExtensions struct {
	TPX tcxTPX `xml:"TPX"`
}

type tcxTPX struct {
	Xmlns string   `xml:"xmlns,attr"`
	Speed *float64 `xml:"Speed,omitempty"`
	Watts *int     `xml:"Watts,omitempty"`
}

// sportNames maps canonical types to the TCX Sport attribute vocabulary.
var sportNames = map[models.ActivityType]string{
	models.TypeRun:  "Running",
	models.TypeBike: "Biking",
	models.TypeWalk: "Walking",
}

// SportName returns the TCX Sport attribute for a canonical type.
// Types outside the TCX vocabulary are emitted as Other.
func SportName(t models.ActivityType) string {
	if s, ok := sportNames[t]; ok {
		return s
	}
	return "Other"
}

// BuildTCX renders a canonical activity as a UTF-8 TCX document with one
// Activity, one Lap spanning the whole duration, and one Trackpoint per
// merged sample. Fields absent from a sample are omitted from its
// trackpoint rather than written as zero. Heart rate, cadence and
// calories are rounded to integers; distances are converted from the
// canonical kilometers to meters.
func BuildTCX(act models.CanonicalActivity) ([]byte, error) {
	start := act.StartTime.UTC().Format(time.RFC3339)

	lap := tcxLap{
		StartTime:        start,
		TotalTimeSeconds: act.Duration,
		Intensity:        "Active",
		TriggerMethod:    "Manual",
	}
	if act.Summary.TotalDistance != nil {
		meters := *act.Summary.TotalDistance * 1000
		lap.DistanceMeters = &meters
	}
	if act.Summary.TotalCalories != nil {
		cal := int(math.Round(*act.Summary.TotalCalories))
		lap.Calories = &cal
	}
	if act.Summary.AvgHeartRate != nil {
		lap.AverageHeartRate = &tcxHeartRate{Value: int(math.Round(*act.Summary.AvgHeartRate))}
	}
	if act.Summary.MaxHeartRate != nil {
		lap.MaximumHeartRate = &tcxHeartRate{Value: int(math.Round(*act.Summary.MaxHeartRate))}
	}
	if len(act.Samples) > 0 {
		track := &tcxTrack{Trackpoints: make([]tcxTrackpoint, 0, len(act.Samples))}
		for _, s := range act.Samples {
			track.Trackpoints = append(track.Trackpoints, buildTrackpoint(s))
		}
		lap.Track = track
	}

	doc := tcxDatabase{
		Xmlns: tcxNamespace,
		Activities: tcxActivities{
			Activity: tcxActivity{
				Sport: SportName(act.Type),
				ID:    start,
				Lap:   lap,
			},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode tcx: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func buildTrackpoint(s models.Sample) tcxTrackpoint {
	tp := tcxTrackpoint{
		Time: s.Timestamp.UTC().Format(time.RFC3339),
	}
	if s.Latitude != nil && s.Longitude != nil {
		tp.Position = &tcxPosition{
			LatitudeDegrees:  *s.Latitude,
			LongitudeDegrees: *s.Longitude,
		}
	}
	tp.AltitudeMeters = s.Altitude
	if s.Distance != nil {
		meters := *s.Distance * 1000
		tp.DistanceMeters = &meters
	}
	if s.HeartRate != nil {
		tp.HeartRateBpm = &tcxHeartRate{Value: int(math.Round(*s.HeartRate))}
	}
	if s.Cadence != nil {
		cad := int(math.Round(*s.Cadence))
		tp.Cadence = &cad
	}
	if s.Speed != nil || s.Power != nil {
		tpx := tcxTPX{Xmlns: tpxNamespace, Speed: s.Speed}
		if s.Power != nil {
			w := int(math.Round(*s.Power))
			tpx.Watts = &w
		}
		tp.Extensions = &tcxExtensions{TPX: tpx}
	}
	return tp
}

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package matching

import (
	"sort"
	"time"

	"github.com/ergosync/ergosync/internal/models"
)

// Scoring constants. Time proximity dominates duration similarity because
// two devices recording the same session start within seconds of each
// other, while durations drift when the user forgets to stop a watch.
const (
	timeWeight     = 0.7
	durationWeight = 0.3

	// Start times within this difference score a perfect 100.
	perfectTimeDiff = time.Minute

	// Durations within 5% of each other score a perfect 100.
	perfectDurationRatio = 0.95

	// Neutral duration score when either duration is unknown.
	neutralDurationScore = 50
)

// Confidence tier thresholds.
const (
	highScoreMin   = 85
	highTimeDiff   = 5 * time.Minute
	mediumScoreMin = 70
	mediumTimeDiff = 15 * time.Minute
)

// Matcher scores and pairs activities from the two origins.
type Matcher struct {
	// TimeWindow is the maximum absolute start-time difference for a pair
	// to be considered at all.
	TimeWindow time.Duration
}

// New returns a Matcher with the given candidate time window.
func New(timeWindow time.Duration) *Matcher {
	return &Matcher{TimeWindow: timeWindow}
}

// Result is the outcome of one matching pass.
type Result struct {
	// Matches holds the accepted candidates, in Peloton input order.
	Matches []models.MatchCandidate

	// UnmatchedPeloton are the workouts left without an accepted match,
	// in input order.
	UnmatchedPeloton []models.PelotonActivity

	// UnmatchedGarmin are the activities not claimed by any match, in
	// input order.
	UnmatchedGarmin []models.GarminActivity
}

// Match pairs Peloton workouts with Garmin activities. Pure function of
// its inputs: no side effects, deterministic for a fixed input order.
//
// For each Peloton workout, every unclaimed Garmin activity whose start
// time lies within TimeWindow is scored; the best candidate is accepted
// unless its confidence is low, in which case the workout is left
// unmatched. Accepting a candidate claims the Garmin activity for the
// remainder of the pass.
func (m *Matcher) Match(pelotons []models.PelotonActivity, garmins []models.GarminActivity) Result {
	res := Result{}
	claimed := make(map[string]bool, len(garmins))

	for _, p := range pelotons {
		candidates := m.findCandidates(p, garmins, claimed)
		if len(candidates) == 0 {
			res.UnmatchedPeloton = append(res.UnmatchedPeloton, p)
			continue
		}

		best := candidates[0]
		if best.Confidence == models.ConfidenceLow {
			res.UnmatchedPeloton = append(res.UnmatchedPeloton, p)
			continue
		}

		claimed[best.Garmin.ID] = true
		res.Matches = append(res.Matches, best)
	}

	for _, g := range garmins {
		if !claimed[g.ID] {
			res.UnmatchedGarmin = append(res.UnmatchedGarmin, g)
		}
	}

	return res
}

// findCandidates returns the in-window unclaimed candidates for one
// Peloton workout, sorted best-first: score descending, then smaller time
// difference, then Garmin input order. The explicit tie-breaks keep the
// result independent of map iteration order.
func (m *Matcher) findCandidates(p models.PelotonActivity, garmins []models.GarminActivity, claimed map[string]bool) []models.MatchCandidate {
	type ranked struct {
		cand  models.MatchCandidate
		index int
	}
	var candidates []ranked

	for i, g := range garmins {
		if claimed[g.ID] {
			continue
		}
		diff := absDuration(p.StartTime.Sub(g.StartTime))
		if diff > m.TimeWindow {
			continue
		}

		ts := m.scoreTimeProximity(diff)
		ds := scoreDurationSimilarity(p.Duration, g.Duration)
		score := ts*timeWeight + ds*durationWeight

		candidates = append(candidates, ranked{
			cand: models.MatchCandidate{
				Peloton:    p,
				Garmin:     g,
				Score:      score,
				TimeScore:  ts,
				DurScore:   ds,
				TimeDiff:   diff,
				Confidence: confidence(score, diff),
			},
			index: i,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].cand.Score != candidates[b].cand.Score {
			return candidates[a].cand.Score > candidates[b].cand.Score
		}
		if candidates[a].cand.TimeDiff != candidates[b].cand.TimeDiff {
			return candidates[a].cand.TimeDiff < candidates[b].cand.TimeDiff
		}
		return candidates[a].index < candidates[b].index
	})

	out := make([]models.MatchCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = c.cand
	}
	return out
}

// scoreTimeProximity maps a start-time difference to 0-100: perfect up to
// one minute, then linear decay reaching 0 at the window edge.
func (m *Matcher) scoreTimeProximity(diff time.Duration) float64 {
	if diff <= perfectTimeDiff {
		return 100
	}
	score := 100 - diff.Minutes()/m.TimeWindow.Minutes()*100
	if score < 0 {
		return 0
	}
	return score
}

// scoreDurationSimilarity maps two durations (seconds) to 0-100.
// An unknown duration on either side is neutral rather than penalizing:
// some Peloton classes report no duration until the ride is finalized.
func scoreDurationSimilarity(d1, d2 int) float64 {
	if d1 == 0 || d2 == 0 {
		return neutralDurationScore
	}

	shorter, longer := d1, d2
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	ratio := float64(shorter) / float64(longer)
	if ratio >= perfectDurationRatio {
		return 100
	}
	return ratio * 100
}

// confidence buckets a score plus time difference into an accept gate.
func confidence(score float64, diff time.Duration) models.Confidence {
	if score >= highScoreMin && diff <= highTimeDiff {
		return models.ConfidenceHigh
	}
	if score >= mediumScoreMin && diff <= mediumTimeDiff {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/ergosync/ergosync/internal/logging"
	"github.com/ergosync/ergosync/internal/metrics"
	"github.com/ergosync/ergosync/internal/models"
)

// pelotonService is the credential-store key and metrics label.
const pelotonService = "peloton"

// PelotonClient fetches workouts and performance time-series from the
// Peloton API. Authentication is a session cookie obtained by login; the
// session is persisted in the credential store so restarts do not burn
// login attempts.
type PelotonClient struct {
	httpClient
	username string
	password string
	creds    CredentialStore
	session  pelotonSession
}

type pelotonSession struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// NewPelotonClient builds a Peloton client. creds may be nil, in which
// case sessions live only as long as the process.
func NewPelotonClient(baseURL, username, password string, timeout time.Duration, creds CredentialStore) *PelotonClient {
	return &PelotonClient{
		httpClient: newHTTPClient(pelotonService, baseURL, timeout),
		username:   username,
		password:   password,
		creds:      creds,
	}
}

// pelotonWorkoutsResponse is the workout-list payload shape.
type pelotonWorkoutsResponse struct {
	Data []pelotonWorkout `json:"data"`
}

// pelotonWorkout is one workout record. The ride block is present for
// class-based workouts and absent for "just work out" sessions; parsing
// handles both shapes explicitly.
type pelotonWorkout struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	FitnessDiscipline string       `json:"fitness_discipline"`
	CreatedAt         int64        `json:"created_at"`
	EndTime           int64        `json:"end_time"`
	TotalWork         float64      `json:"total_work"`
	AvgCadence        *float64     `json:"average_cadence"`
	AvgHeartRate      *float64     `json:"average_heart_rate"`
	AvgSpeed          *float64     `json:"average_speed"`
	AvgPower          *float64     `json:"average_power"`
	Calories          *float64     `json:"calories"`
	Distance          *float64     `json:"distance"`
	Ride              *pelotonRide `json:"ride"`
}

type pelotonRide struct {
	Title             string `json:"title"`
	Duration          int    `json:"duration"`
	FitnessDiscipline string `json:"fitness_discipline"`
}

// pelotonPerformanceResponse is the performance-graph payload shape.
type pelotonPerformanceResponse struct {
	SecondsSincePedalingStart []int64                    `json:"seconds_since_pedaling_start"`
	Metrics                   []pelotonPerformanceMetric `json:"metrics"`
}

type pelotonPerformanceMetric struct {
	Slug   string     `json:"slug"`
	Values []*float64 `json:"values"`
}

// FetchRecentWorkouts returns the user's most recent workouts, newest
// first, normalized into the shared model.
func (c *PelotonClient) FetchRecentWorkouts(ctx context.Context, limit int) ([]models.PelotonActivity, error) {
	var payload pelotonWorkoutsResponse
	err := c.withSession(ctx, func(s pelotonSession) error {
		endpoint := fmt.Sprintf("%s/api/user/%s/workouts?%s", c.base, url.PathEscape(s.UserID), url.Values{
			"joins": {"ride,ride.instructor"},
			"limit": {strconv.Itoa(limit)},
			"page":  {"0"},
		}.Encode())
		return c.getJSON(ctx, endpoint, s, &payload)
	})
	if err != nil {
		metrics.ClientRequests.WithLabelValues(pelotonService, "failure").Inc()
		return nil, err
	}
	metrics.ClientRequests.WithLabelValues(pelotonService, "success").Inc()

	activities := make([]models.PelotonActivity, 0, len(payload.Data))
	for _, w := range payload.Data {
		activities = append(activities, parsePelotonWorkout(w))
	}
	logging.Debug().Int("count", len(activities)).Msg("fetched peloton workouts")
	return activities, nil
}

// FetchPerformance returns the workout's time-series sampled every few
// seconds. Timestamps are absolute, derived from the workout start.
func (c *PelotonClient) FetchPerformance(ctx context.Context, workoutID string, start time.Time) ([]models.Sample, error) {
	var payload pelotonPerformanceResponse
	err := c.withSession(ctx, func(s pelotonSession) error {
		endpoint := fmt.Sprintf("%s/api/workout/%s/performance_graph?every_n=5", c.base, url.PathEscape(workoutID))
		return c.getJSON(ctx, endpoint, s, &payload)
	})
	if err != nil {
		metrics.ClientRequests.WithLabelValues(pelotonService, "failure").Inc()
		return nil, err
	}
	metrics.ClientRequests.WithLabelValues(pelotonService, "success").Inc()
	return parsePelotonPerformance(payload, start), nil
}

// withSession runs fn with a valid session, logging in first when needed
// and retrying exactly once after an auth failure.
func (c *PelotonClient) withSession(ctx context.Context, fn func(pelotonSession) error) error {
	if c.session.SessionID == "" {
		c.loadStoredSession(ctx)
	}
	if c.session.SessionID == "" {
		if err := c.login(ctx); err != nil {
			return err
		}
	}

	err := fn(c.session)
	var authErr *AuthExpiredError
	if errors.As(err, &authErr) {
		logging.Warn().Msg("peloton session expired, re-authenticating")
		if err := c.login(ctx); err != nil {
			return err
		}
		return fn(c.session)
	}
	return err
}

func (c *PelotonClient) loadStoredSession(ctx context.Context) {
	if c.creds == nil {
		return
	}
	var s pelotonSession
	if err := c.creds.Credential(ctx, pelotonService, &s); err == nil && s.SessionID != "" {
		c.session = s
	}
}

func (c *PelotonClient) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username_or_email": c.username,
		"password":          c.password,
	})
	if err != nil {
		return fmt.Errorf("peloton: marshal login: %w", err)
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.base+"/auth/login", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer drain(resp)

	if isAuthStatus(resp.StatusCode) {
		// Bad credentials, not a stale session: surfacing as auth expired
		// would trigger a pointless retry loop.
		return fmt.Errorf("peloton: login refused (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return c.unexpectedStatus(resp)
	}

	var s pelotonSession
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return fmt.Errorf("peloton: decode login response: %w", err)
	}
	if s.SessionID == "" || s.UserID == "" {
		return errors.New("peloton: login response missing session")
	}

	c.session = s
	if c.creds != nil {
		if err := c.creds.SetCredential(ctx, pelotonService, s); err != nil {
			logging.Warn().Err(err).Msg("failed to persist peloton session")
		}
	}
	logging.Info().Str("user_id", s.UserID).Msg("logged into peloton")
	return nil
}

func (c *PelotonClient) getJSON(ctx context.Context, endpoint string, s pelotonSession, out any) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cookie", "peloton_session_id="+s.SessionID)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer drain(resp)

	if isAuthStatus(resp.StatusCode) {
		return c.authError(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return c.unexpectedStatus(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("peloton: decode response: %w", err)
	}
	return nil
}

// parsePelotonWorkout normalizes one workout record. End time falls back
// to start plus the ride duration when the workout has not been finalized.
func parsePelotonWorkout(w pelotonWorkout) models.PelotonActivity {
	start := time.Unix(w.CreatedAt, 0).UTC()
	var end time.Time
	switch {
	case w.EndTime > 0:
		end = time.Unix(w.EndTime, 0).UTC()
	case w.Ride != nil:
		end = start.Add(time.Duration(w.Ride.Duration) * time.Second)
	default:
		end = start
	}

	discipline := w.FitnessDiscipline
	if discipline == "" && w.Ride != nil {
		discipline = w.Ride.FitnessDiscipline
	}
	if discipline == "" {
		discipline = "unknown"
	}

	name := w.Name
	if w.Ride != nil && w.Ride.Title != "" {
		name = w.Ride.Title
	}
	if name == "" {
		name = "Peloton Workout"
	}

	act := models.PelotonActivity{
		ID:           w.ID,
		Name:         name,
		Discipline:   discipline,
		StartTime:    start,
		EndTime:      end,
		Duration:     int(math.Round(end.Sub(start).Seconds())),
		AvgCadence:   w.AvgCadence,
		AvgHeartRate: w.AvgHeartRate,
		AvgSpeed:     w.AvgSpeed,
		AvgPower:     w.AvgPower,
		Calories:     w.Calories,
		Distance:     w.Distance,
	}
	if w.TotalWork > 0 {
		act.TotalOutput = models.Float64(w.TotalWork / 1000) // J -> kJ
	}
	return act
}

// parsePelotonPerformance converts the per-slug metric arrays into
// timestamped samples. Known slugs are mapped explicitly; unknown slugs
// are ignored rather than guessed at.
func parsePelotonPerformance(p pelotonPerformanceResponse, start time.Time) []models.Sample {
	bySlug := make(map[string][]*float64, len(p.Metrics))
	length := 0
	for _, m := range p.Metrics {
		bySlug[m.Slug] = m.Values
		if len(m.Values) > length {
			length = len(m.Values)
		}
	}

	samples := make([]models.Sample, 0, length)
	for i := 0; i < length; i++ {
		var offset int64
		if i < len(p.SecondsSincePedalingStart) {
			offset = p.SecondsSincePedalingStart[i]
		} else {
			offset = int64(i) * 5
		}
		samples = append(samples, models.Sample{
			Timestamp: start.Add(time.Duration(offset) * time.Second),
			HeartRate: at(bySlug["heart_rate"], i),
			Cadence:   at(bySlug["cadence"], i),
			Speed:     at(bySlug["speed"], i),
			Power:     at(bySlug["output"], i),
		})
	}
	return samples
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

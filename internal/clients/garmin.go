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
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ergosync/ergosync/internal/logging"
	"github.com/ergosync/ergosync/internal/metrics"
	"github.com/ergosync/ergosync/internal/models"
)

const garminService = "garmin"

// GarminClient talks to Garmin Connect in one of two authentication
// modes.
//
// Token mode uses OAuth tokens extracted from a browser session. Tokens
// live as JSON files under tokenPath (oauth1_token.json,
// oauth2_token.json); the OAuth2 access token is refreshed in place via
// the di-oauth exchange when it expires, and API calls go through the
// /gc-api proxy prefix.
//
// Credential mode logs in with username and password against /signin and
// carries the resulting session cookie. The session is persisted in the
// credential store so restarts do not burn login attempts.
type GarminClient struct {
	httpClient
	useTokens bool

	// token mode
	tokenPath string
	oauth1    garminOAuth1Token
	oauth2    garminOAuth2Token

	// credential mode
	username string
	password string
	creds    CredentialStore
	session  garminSession
}

type garminOAuth1Token struct {
	Token string `json:"token"`
}

type garminOAuth2Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds; 0 when unknown
}

type garminSession struct {
	Cookie string `json:"cookie"`
}

// NewGarminTokenClient builds a Garmin client reading OAuth tokens from
// tokenPath.
func NewGarminTokenClient(baseURL, tokenPath string, timeout time.Duration) *GarminClient {
	return &GarminClient{
		httpClient: newHTTPClient(garminService, baseURL, timeout),
		useTokens:  true,
		tokenPath:  tokenPath,
	}
}

// NewGarminCredentialClient builds a Garmin client that logs in with
// username and password. creds may be nil, in which case sessions live
// only as long as the process.
func NewGarminCredentialClient(baseURL, username, password string, timeout time.Duration, creds CredentialStore) *GarminClient {
	return &GarminClient{
		httpClient: newHTTPClient(garminService, baseURL, timeout),
		username:   username,
		password:   password,
		creds:      creds,
	}
}

// garminActivity is one record from the activity-list search endpoint.
type garminActivity struct {
	ActivityID    int64               `json:"activityId"`
	ActivityName  string              `json:"activityName"`
	StartTimeGMT  string              `json:"startTimeGMT"`
	Duration      float64             `json:"duration"` // seconds
	ActivityType  *garminActivityType `json:"activityType"`
	AverageHR     *float64            `json:"averageHR"`
	MaxHR         *float64            `json:"maxHR"`
	AvgRunCadence *float64            `json:"averageRunningCadenceInStepsPerMinute"`
	AvgBikeCad    *float64            `json:"averageBikingCadenceInRevPerMinute"`
	AverageSpeed  *float64            `json:"averageSpeed"` // m/s
	Distance      *float64            `json:"distance"`     // meters
	Calories      *float64            `json:"calories"`
}

type garminActivityType struct {
	TypeKey string `json:"typeKey"`
}

// garminDetails is the per-activity detail payload: parallel metric arrays
// described by key-to-index descriptors.
type garminDetails struct {
	MetricDescriptors     []garminMetricDescriptor `json:"metricDescriptors"`
	ActivityDetailMetrics []garminDetailMetric     `json:"activityDetailMetrics"`
}

type garminMetricDescriptor struct {
	Key          string `json:"key"`
	MetricsIndex int    `json:"metricsIndex"`
}

type garminDetailMetric struct {
	Metrics []*float64 `json:"metrics"`
}

// garminStartTimeLayout is the format of startTimeGMT, an unzoned GMT
// wall-clock string.
const garminStartTimeLayout = "2006-01-02 15:04:05"

// apiPath maps an API path to the mode's URL shape. Token-mode requests
// go through the /gc-api proxy prefix; credential-mode sessions hit the
// service paths directly.
func (c *GarminClient) apiPath(p string) string {
	if c.useTokens {
		return c.base + "/gc-api" + p
	}
	return c.base + p
}

// FetchRecentActivities returns the most recent activities, newest first.
func (c *GarminClient) FetchRecentActivities(ctx context.Context, limit int) ([]models.GarminActivity, error) {
	endpoint := c.apiPath("/activitylist-service/activities/search/activities") + "?" + url.Values{
		"start": {"0"},
		"limit": {strconv.Itoa(limit)},
	}.Encode()

	var payload []garminActivity
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		metrics.ClientRequests.WithLabelValues(garminService, "failure").Inc()
		return nil, err
	}
	metrics.ClientRequests.WithLabelValues(garminService, "success").Inc()

	activities := make([]models.GarminActivity, 0, len(payload))
	for _, a := range payload {
		act, err := parseGarminActivity(a)
		if err != nil {
			logging.Warn().Err(err).Int64("activity_id", a.ActivityID).Msg("skipping malformed garmin activity")
			continue
		}
		activities = append(activities, act)
	}
	logging.Debug().Int("count", len(activities)).Msg("fetched garmin activities")
	return activities, nil
}

// FetchSamples returns the activity's detail time-series. The detail
// payload is parallel arrays keyed by metric descriptors; only the metrics
// the merge consumes are extracted.
func (c *GarminClient) FetchSamples(ctx context.Context, activityID string) ([]models.Sample, error) {
	endpoint := c.apiPath(fmt.Sprintf("/activity-service/activity/%s/details", url.PathEscape(activityID)))

	var payload garminDetails
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		metrics.ClientRequests.WithLabelValues(garminService, "failure").Inc()
		return nil, err
	}
	metrics.ClientRequests.WithLabelValues(garminService, "success").Inc()
	return parseGarminSamples(payload), nil
}

// Upload pushes a TCX document to Garmin Connect. A 4xx response means
// Garmin refused the document (usually a duplicate) and comes back as a
// RejectedError.
func (c *GarminClient) Upload(ctx context.Context, tcx []byte, name string) error {
	endpoint := c.apiPath("/upload-service/upload/.tcx")
	contentType := "application/xml"
	if !c.useTokens {
		endpoint = c.apiPath("/upload-service/upload")
		contentType = "application/octet-stream"
	}

	err := c.withAuth(ctx, func() error {
		resp, err := c.do(ctx, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(tcx))
			if err != nil {
				return nil, err
			}
			c.setAuthHeaders(req)
			req.Header.Set("Content-Type", contentType)
			return req, nil
		})
		if err != nil {
			return err
		}
		defer drain(resp)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case isAuthStatus(resp.StatusCode):
			return c.authError(resp)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return &RejectedError{Service: garminService, Status: resp.StatusCode, Body: readErrorBody(resp)}
		default:
			return c.unexpectedStatus(resp)
		}
	})
	if err != nil {
		metrics.ClientRequests.WithLabelValues(garminService, "failure").Inc()
		return err
	}
	metrics.ClientRequests.WithLabelValues(garminService, "success").Inc()
	logging.Info().Str("name", name).Msg("uploaded activity to garmin")
	return nil
}

func (c *GarminClient) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.withAuth(ctx, func() error {
		resp, err := c.do(ctx, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			c.setAuthHeaders(req)
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
			return fmt.Errorf("garmin: decode response: %w", err)
		}
		return nil
	})
}

// withAuth runs fn authenticated for the client's mode, recovering once
// from an auth failure: token mode refreshes the access token, credential
// mode logs in again.
func (c *GarminClient) withAuth(ctx context.Context, fn func() error) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}

	err := fn()
	var authErr *AuthExpiredError
	if errors.As(err, &authErr) {
		if c.useTokens {
			logging.Warn().Msg("garmin access token rejected, refreshing")
			if err := c.refreshToken(ctx); err != nil {
				return err
			}
		} else {
			logging.Warn().Msg("garmin session expired, re-authenticating")
			if err := c.login(ctx); err != nil {
				return err
			}
		}
		return fn()
	}
	return err
}

func (c *GarminClient) ensureAuthenticated(ctx context.Context) error {
	if c.useTokens {
		if err := c.ensureTokens(); err != nil {
			return err
		}
		if c.oauth2.expired() {
			return c.refreshToken(ctx)
		}
		return nil
	}

	if c.session.Cookie == "" {
		c.loadStoredSession(ctx)
	}
	if c.session.Cookie == "" {
		return c.login(ctx)
	}
	return nil
}

func (c *GarminClient) loadStoredSession(ctx context.Context) {
	if c.creds == nil {
		return
	}
	var s garminSession
	if err := c.creds.Credential(ctx, garminService, &s); err == nil && s.Cookie != "" {
		c.session = s
	}
}

// login authenticates with username and password and captures the session
// cookies from the response.
func (c *GarminClient) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{
		"username": c.username,
		"password": c.password,
		"embed":    false,
	})
	if err != nil {
		return fmt.Errorf("garmin: marshal login: %w", err)
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.base+"/signin", bytes.NewReader(body))
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
		return fmt.Errorf("garmin: login refused (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return c.unexpectedStatus(resp)
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return errors.New("garmin: login response carried no session cookie")
	}
	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}

	c.session = garminSession{Cookie: strings.Join(pairs, "; ")}
	if c.creds != nil {
		if err := c.creds.SetCredential(ctx, garminService, c.session); err != nil {
			logging.Warn().Err(err).Msg("failed to persist garmin session")
		}
	}
	logging.Info().Msg("logged into garmin connect")
	return nil
}

func (t garminOAuth2Token) expired() bool {
	return t.ExpiresAt > 0 && time.Now().Unix() >= t.ExpiresAt
}

func (c *GarminClient) ensureTokens() error {
	if c.oauth2.AccessToken != "" {
		return nil
	}
	if err := readTokenFile(filepath.Join(c.tokenPath, "oauth1_token.json"), &c.oauth1); err != nil {
		return err
	}
	if err := readTokenFile(filepath.Join(c.tokenPath, "oauth2_token.json"), &c.oauth2); err != nil {
		return err
	}
	if c.oauth2.AccessToken == "" {
		return errors.New("garmin: oauth2 token file missing access_token")
	}
	logging.Info().Str("path", c.tokenPath).Msg("loaded garmin tokens")
	return nil
}

func readTokenFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("garmin: read token file: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("garmin: parse token file %s: %w", filepath.Base(path), err)
	}
	return nil
}

// refreshToken exchanges the refresh token for a new access token and
// writes the updated token file back so the next process start reuses it.
func (c *GarminClient) refreshToken(ctx context.Context) error {
	if c.oauth2.RefreshToken == "" {
		return &AuthExpiredError{Service: garminService, Err: errors.New("no refresh token, re-extract tokens")}
	}

	body, err := json.Marshal(map[string]string{
		"refresh_token": c.oauth2.RefreshToken,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return fmt.Errorf("garmin: marshal refresh request: %w", err)
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.base+"/modern/di-oauth/exchange", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.oauth1.Token != "" {
			req.Header.Set("Cookie", "GARMIN-SSO-CUST-GUID="+c.oauth1.Token)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return &AuthExpiredError{Service: garminService, Err: fmt.Errorf("token exchange HTTP %d: %s", resp.StatusCode, readErrorBody(resp))}
	}

	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return fmt.Errorf("garmin: decode token exchange: %w", err)
	}
	if refreshed.AccessToken == "" {
		return &AuthExpiredError{Service: garminService, Err: errors.New("token exchange returned no access token")}
	}

	c.oauth2.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		c.oauth2.RefreshToken = refreshed.RefreshToken
	}
	if refreshed.ExpiresIn > 0 {
		c.oauth2.ExpiresAt = time.Now().Unix() + refreshed.ExpiresIn
	}

	if data, err := json.MarshalIndent(c.oauth2, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(c.tokenPath, "oauth2_token.json"), data, 0o600); err != nil {
			logging.Warn().Err(err).Msg("failed to persist refreshed garmin token")
		}
	}

	logging.Info().Msg("refreshed garmin access token")
	return nil
}

func (c *GarminClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if !c.useTokens {
		req.Header.Set("Cookie", c.session.Cookie)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.oauth2.AccessToken)
	req.Header.Set("DI-Backend", "connectapi.garmin.com")
	if c.oauth1.Token != "" {
		req.Header.Set("Cookie", "GARMIN-SSO-CUST-GUID="+c.oauth1.Token+"; GARMIN-SSO=1")
	}
}

func parseGarminActivity(a garminActivity) (models.GarminActivity, error) {
	start, err := time.Parse(garminStartTimeLayout, a.StartTimeGMT)
	if err != nil {
		return models.GarminActivity{}, fmt.Errorf("parse startTimeGMT %q: %w", a.StartTimeGMT, err)
	}
	start = start.UTC()
	duration := int(a.Duration)

	typeKey := "other"
	if a.ActivityType != nil && a.ActivityType.TypeKey != "" {
		typeKey = a.ActivityType.TypeKey
	}

	name := a.ActivityName
	if name == "" {
		name = "Garmin Activity"
	}

	return models.GarminActivity{
		ID:            strconv.FormatInt(a.ActivityID, 10),
		Name:          name,
		TypeKey:       typeKey,
		StartTime:     start,
		EndTime:       start.Add(time.Duration(duration) * time.Second),
		Duration:      duration,
		AvgHeartRate:  a.AverageHR,
		MaxHeartRate:  a.MaxHR,
		AvgRunCadence: a.AvgRunCadence,
		AvgBikeCad:    a.AvgBikeCad,
		AvgSpeed:      a.AverageSpeed,
		Distance:      a.Distance,
		Calories:      a.Calories,
	}, nil
}

// parseGarminSamples extracts the consumed metrics from the parallel
// metric arrays. The first descriptor column holds millisecond timestamps.
func parseGarminSamples(d garminDetails) []models.Sample {
	indexOf := func(keys ...string) int {
		for _, k := range keys {
			for _, desc := range d.MetricDescriptors {
				if desc.Key == k {
					return desc.MetricsIndex
				}
			}
		}
		return -1
	}

	tsIdx := indexOf("directTimestamp", "timestamp")
	hrIdx := indexOf("directHeartRate", "heartRate")
	cadIdx := indexOf("directCadence", "cadence")
	spdIdx := indexOf("directSpeed", "speed")
	pwrIdx := indexOf("directPower", "power")
	if tsIdx < 0 {
		return nil
	}

	col := func(m garminDetailMetric, idx int) *float64 {
		if idx >= 0 && idx < len(m.Metrics) {
			return m.Metrics[idx]
		}
		return nil
	}

	samples := make([]models.Sample, 0, len(d.ActivityDetailMetrics))
	for _, m := range d.ActivityDetailMetrics {
		ts := col(m, tsIdx)
		if ts == nil {
			continue
		}
		samples = append(samples, models.Sample{
			Timestamp: time.UnixMilli(int64(*ts)).UTC(),
			HeartRate: col(m, hrIdx),
			Cadence:   col(m, cadIdx),
			Speed:     col(m, spdIdx),
			Power:     col(m, pwrIdx),
		})
	}
	return samples
}

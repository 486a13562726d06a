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
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ergosync/ergosync/internal/logging"
	"github.com/ergosync/ergosync/internal/metrics"
)

const stravaService = "strava"

// stravaRefreshMargin refreshes the access token ahead of expiry instead
// of waiting for a 401 mid-upload.
const stravaRefreshMargin = time.Hour

// StravaClient uploads TCX documents to Strava. Auth is the standard
// OAuth2 refresh-token flow; refreshed tokens are persisted in the
// credential store so the rotating refresh token survives restarts.
type StravaClient struct {
	httpClient
	clientID     string
	clientSecret string
	creds        CredentialStore
	token        stravaToken
}

type stravaToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
}

// NewStravaClient builds a Strava client. accessToken may be empty;
// refreshToken seeds the flow when the credential store holds nothing yet.
func NewStravaClient(baseURL, clientID, clientSecret, refreshToken, accessToken string, timeout time.Duration, creds CredentialStore) *StravaClient {
	c := &StravaClient{
		httpClient:   newHTTPClient(stravaService, baseURL, timeout),
		clientID:     clientID,
		clientSecret: clientSecret,
		creds:        creds,
	}
	c.token = stravaToken{AccessToken: accessToken, RefreshToken: refreshToken}
	return c
}

// Upload pushes a TCX document via the uploads endpoint. Strava answers
// 4xx for malformed or duplicate files; those come back as RejectedError
// so the caller can leave the entry for a later retry decision.
func (c *StravaClient) Upload(ctx context.Context, tcx []byte, fileName string) error {
	if err := c.ensureToken(ctx); err != nil {
		metrics.ClientRequests.WithLabelValues(stravaService, "failure").Inc()
		return err
	}

	err := c.upload(ctx, tcx, fileName)
	var authErr *AuthExpiredError
	if errors.As(err, &authErr) {
		logging.Warn().Msg("strava access token rejected, refreshing")
		if err = c.refresh(ctx); err == nil {
			err = c.upload(ctx, tcx, fileName)
		}
	}
	if err != nil {
		metrics.ClientRequests.WithLabelValues(stravaService, "failure").Inc()
		return err
	}
	metrics.ClientRequests.WithLabelValues(stravaService, "success").Inc()
	logging.Info().Str("file", fileName).Msg("uploaded activity to strava")
	return nil
}

func (c *StravaClient) upload(ctx context.Context, tcx []byte, fileName string) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return fmt.Errorf("strava: build upload form: %w", err)
	}
	if _, err := part.Write(tcx); err != nil {
		return fmt.Errorf("strava: build upload form: %w", err)
	}
	if err := form.WriteField("data_type", "tcx"); err != nil {
		return fmt.Errorf("strava: build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("strava: build upload form: %w", err)
	}
	body := buf.Bytes()

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.base+"/uploads", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
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
		return &RejectedError{Service: stravaService, Status: resp.StatusCode, Body: readErrorBody(resp)}
	default:
		return c.unexpectedStatus(resp)
	}
}

// ensureToken loads a stored token and refreshes when missing or inside
// the refresh margin.
func (c *StravaClient) ensureToken(ctx context.Context) error {
	if c.token.AccessToken == "" && c.creds != nil {
		var stored stravaToken
		if err := c.creds.Credential(ctx, stravaService, &stored); err == nil && stored.AccessToken != "" {
			c.token = stored
		}
	}
	if c.needsRefresh() {
		return c.refresh(ctx)
	}
	return nil
}

func (c *StravaClient) needsRefresh() bool {
	if c.token.AccessToken == "" || c.token.ExpiresAt == 0 {
		return true
	}
	return time.Until(time.Unix(c.token.ExpiresAt, 0)) < stravaRefreshMargin
}

func (c *StravaClient) refresh(ctx context.Context) error {
	if c.token.RefreshToken == "" {
		return &AuthExpiredError{Service: stravaService, Err: errors.New("no refresh token configured")}
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"refresh_token": c.token.RefreshToken,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return fmt.Errorf("strava: marshal refresh request: %w", err)
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.tokenURL(), bytes.NewReader(body))
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

	if resp.StatusCode != http.StatusOK {
		return &AuthExpiredError{Service: stravaService, Err: fmt.Errorf("token refresh HTTP %d: %s", resp.StatusCode, readErrorBody(resp))}
	}

	var refreshed stravaToken
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return fmt.Errorf("strava: decode token refresh: %w", err)
	}
	if refreshed.AccessToken == "" {
		return &AuthExpiredError{Service: stravaService, Err: errors.New("token refresh returned no access token")}
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = c.token.RefreshToken
	}
	c.token = refreshed

	if c.creds != nil {
		if err := c.creds.SetCredential(ctx, stravaService, c.token); err != nil {
			logging.Warn().Err(err).Msg("failed to persist strava token")
		}
	}
	logging.Info().Msg("refreshed strava access token")
	return nil
}

// tokenURL is the OAuth endpoint, which lives outside the /api/v3 prefix.
func (c *StravaClient) tokenURL() string {
	return strings.TrimSuffix(c.base, "/api/v3") + "/oauth/token"
}

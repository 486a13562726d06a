// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ergosync/ergosync/internal/logging"
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting.
const maxErrorBodySize = 64 * 1024

// rateLimitMaxAttempts bounds 429 retries: backoff 1s, 2s, 4s, 8s, 16s.
const rateLimitMaxAttempts = 5

// CredentialStore persists refreshed sessions and tokens across restarts.
// Implemented by *ledger.Ledger.
type CredentialStore interface {
	SetCredential(ctx context.Context, service string, cred any) error
	Credential(ctx context.Context, service string, out any) error
}

// httpClient bundles the pieces every service client shares.
type httpClient struct {
	service string
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(service, baseURL string, timeout time.Duration) httpClient {
	return httpClient{
		service: service,
		base:    baseURL,
		http:    &http.Client{Timeout: timeout},
		// One request per second sustained, small burst. All three
		// services throttle aggressively and none of our calls are
		// latency sensitive.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// do executes a request with rate limiting and bounded backoff on 429.
// newReq builds a fresh request per attempt so retried uploads re-read
// their body from the start. A returned response always has a status
// below 500 and other than 429; remaining status handling is per-call.
func (c *httpClient) do(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := time.Second

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransientError{Service: c.service, Err: err}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", c.service, err)
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			return nil, &TransientError{Service: c.service, Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			if attempt >= rateLimitMaxAttempts {
				return nil, &TransientError{Service: c.service, Err: errors.New("rate limited after max retries")}
			}
			logging.Warn().Str("service", c.service).Int("attempt", attempt).Dur("backoff", backoff).Msg("rate limited, backing off")
			select {
			case <-ctx.Done():
				return nil, &TransientError{Service: c.service, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		case resp.StatusCode >= http.StatusInternalServerError:
			body := readErrorBody(resp)
			drain(resp)
			return nil, &TransientError{Service: c.service, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)}
		default:
			return resp, nil
		}
	}
}

// authError classifies an unauthorized response.
func (c *httpClient) authError(resp *http.Response) error {
	body := readErrorBody(resp)
	return &AuthExpiredError{Service: c.service, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)}
}

// unexpectedStatus wraps a status no caller expects. Not part of the
// retry taxonomy: the cycle treats it as an unrecoverable fetch failure.
func (c *httpClient) unexpectedStatus(resp *http.Response) error {
	body := readErrorBody(resp)
	return fmt.Errorf("%s: unexpected HTTP %d: %s", c.service, resp.StatusCode, body)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// readErrorBody reads at most maxErrorBodySize of a response body for
// diagnostics.
func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return string(body)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	_ = resp.Body.Close()
}

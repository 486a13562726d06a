// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterSustainedFailures(t *testing.T) {
	cb := newBreaker("test-api")
	boom := errors.New("boom")

	for i := 0; i < 10; i++ {
		_, err := execute(cb, "test", func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	// Requests against an open circuit never reach the underlying call
	// and surface as transient so the cycle degrades instead of failing.
	calls := 0
	_, err := execute(cb, "test", func() (any, error) {
		calls++
		return nil, nil
	})
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Zero(t, calls)
}

func TestBreakerStaysClosedUnderOccasionalFailures(t *testing.T) {
	cb := newBreaker("test-api-2")
	boom := errors.New("boom")

	for i := 0; i < 20; i++ {
		fail := i%4 == 0 // 25% failure rate, below the 60% trip threshold
		_, err := execute(cb, "test", func() (any, error) {
			if fail {
				return nil, boom
			}
			return "ok", nil
		})
		if fail {
			require.ErrorIs(t, err, boom)
		} else {
			require.NoError(t, err)
		}
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCastResult(t *testing.T) {
	got, err := castResult[[]string]([]string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	_, err = castResult[[]string](42, nil)
	require.Error(t, err)

	boom := errors.New("boom")
	_, err = castResult[[]string](nil, boom)
	assert.ErrorIs(t, err, boom)
}

func TestStravaBreakerIgnoresRejections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("duplicate"))
	}))
	defer srv.Close()

	client := NewStravaClient(srv.URL+"/api/v3", "id", "secret", "refresh", "access", 5*time.Second, nil)
	client.token.ExpiresAt = time.Now().Add(6 * time.Hour).Unix()
	breaker := NewStravaBreaker(client)

	for i := 0; i < 3; i++ {
		err := breaker.Upload(context.Background(), []byte("<tcx/>"), "ride.tcx")
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
	}

	// Rejections are Strava's verdict on the document, not an outage:
	// the breaker must not count them as failures.
	counts := breaker.cb.Counts()
	assert.Zero(t, counts.TotalFailures)
	assert.Equal(t, gobreaker.StateClosed, breaker.cb.State())
}

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ergosync/ergosync/internal/logging"
	"github.com/ergosync/ergosync/internal/metrics"
	"github.com/ergosync/ergosync/internal/models"
)

// newBreaker builds a circuit breaker with the shared tuning:
// - 3 requests allowed in half-open state
// - 1 minute measurement window in closed state
// - 2 minutes open before probing again
// - trips at a 60% failure rate over at least 10 requests
func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

// execute runs fn through the breaker, mapping an open circuit to a
// TransientError so the cycle degrades the same way it does for any
// short-lived outage.
func execute(cb *gobreaker.CircuitBreaker[any], service string, fn func() (any, error)) (any, error) {
	result, err := cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Str("breaker", cb.Name()).Err(err).Msg("request rejected by circuit breaker")
			return nil, &TransientError{Service: service, Err: err}
		}
		return nil, err
	}
	return result, nil
}

func castResult[T any](result any, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// PelotonBreaker wraps a PelotonClient with circuit breaker protection.
type PelotonBreaker struct {
	client *PelotonClient
	cb     *gobreaker.CircuitBreaker[any]
}

func NewPelotonBreaker(client *PelotonClient) *PelotonBreaker {
	return &PelotonBreaker{client: client, cb: newBreaker("peloton-api")}
}

func (b *PelotonBreaker) FetchRecentWorkouts(ctx context.Context, limit int) ([]models.PelotonActivity, error) {
	return castResult[[]models.PelotonActivity](execute(b.cb, pelotonService, func() (any, error) {
		return b.client.FetchRecentWorkouts(ctx, limit)
	}))
}

func (b *PelotonBreaker) FetchPerformance(ctx context.Context, workoutID string, start time.Time) ([]models.Sample, error) {
	return castResult[[]models.Sample](execute(b.cb, pelotonService, func() (any, error) {
		return b.client.FetchPerformance(ctx, workoutID, start)
	}))
}

// GarminBreaker wraps a GarminClient with circuit breaker protection.
type GarminBreaker struct {
	client *GarminClient
	cb     *gobreaker.CircuitBreaker[any]
}

func NewGarminBreaker(client *GarminClient) *GarminBreaker {
	return &GarminBreaker{client: client, cb: newBreaker("garmin-api")}
}

func (b *GarminBreaker) FetchRecentActivities(ctx context.Context, limit int) ([]models.GarminActivity, error) {
	return castResult[[]models.GarminActivity](execute(b.cb, garminService, func() (any, error) {
		return b.client.FetchRecentActivities(ctx, limit)
	}))
}

func (b *GarminBreaker) FetchSamples(ctx context.Context, activityID string) ([]models.Sample, error) {
	return castResult[[]models.Sample](execute(b.cb, garminService, func() (any, error) {
		return b.client.FetchSamples(ctx, activityID)
	}))
}

func (b *GarminBreaker) Upload(ctx context.Context, tcx []byte, name string) error {
	_, err := execute(b.cb, garminService, func() (any, error) {
		return nil, b.client.Upload(ctx, tcx, name)
	})
	return err
}

// StravaBreaker wraps a StravaClient with circuit breaker protection.
// Rejections are Strava's verdict on the document, not an availability
// signal, so they do not count as breaker failures.
type StravaBreaker struct {
	client *StravaClient
	cb     *gobreaker.CircuitBreaker[any]
}

func NewStravaBreaker(client *StravaClient) *StravaBreaker {
	return &StravaBreaker{client: client, cb: newBreaker("strava-api")}
}

func (b *StravaBreaker) Upload(ctx context.Context, tcx []byte, fileName string) error {
	result, err := execute(b.cb, stravaService, func() (any, error) {
		err := b.client.Upload(ctx, tcx, fileName)
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			return err, nil
		}
		return nil, err
	})
	if err != nil {
		return err
	}
	if rejected, ok := result.(error); ok {
		return rejected
	}
	return nil
}

// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package clients

import "fmt"

// TransientError marks a failure worth retrying on a later cycle: the
// remote service was unreachable, rate-limited past our backoff budget,
// or returned a server error.
type TransientError struct {
	Service string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Service, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthExpiredError marks a request refused for stale credentials. Clients
// perform one bounded refresh-then-retry before surfacing it.
type AuthExpiredError struct {
	Service string
	Err     error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("%s: credentials expired: %v", e.Service, e.Err)
}

func (e *AuthExpiredError) Unwrap() error { return e.Err }

// RejectedError marks an upload the destination refused as invalid
// content. Permanent for that attempt; the record stays retry-eligible
// because its ledger status is not advanced.
type RejectedError struct {
	Service string
	Status  int
	Body    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: upload rejected (HTTP %d): %s", e.Service, e.Status, e.Body)
}

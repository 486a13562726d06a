// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes. Index keys (peloton:, garmin:) hold the canonical
// identity their origin id resolves to, enforcing the invariant that at
// most one entry references a given origin id.
const (
	entryKeyPrefix   = "entry:"
	pelotonKeyPrefix = "peloton:"
	garminKeyPrefix  = "garmin:"
	credKeyPrefix    = "cred:"
	lastSyncKey      = "meta:last_sync"
)

// ErrNotFound is returned when no entry matches a lookup.
var ErrNotFound = errors.New("ledger: entry not found")

// PersistenceError wraps a failed ledger read or write. The sync cycle
// treats it as fatal: partial state must not be assumed committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Status is an entry's lifecycle state.
type Status string

const (
	// StatusStandalone marks a record seen on one origin only. Terminal.
	StatusStandalone Status = "standalone"

	// StatusMerged marks a reconciled record awaiting stage-2 publication.
	StatusMerged Status = "merged"

	// StatusSynced marks a record published to Strava. Terminal.
	StatusSynced Status = "synced"
)

// Entry is the persistent record of one canonical activity.
type Entry struct {
	ID          string     `json:"id"`
	PelotonID   string     `json:"peloton_id,omitempty"`
	GarminID    string     `json:"garmin_id,omitempty"`
	Status      Status     `json:"status"`
	ProcessedAt time.Time  `json:"processed_at"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
	UploadedAt  *time.Time `json:"uploaded_to_garmin_at,omitempty"`
	SyncedAt    *time.Time `json:"synced_to_strava_at,omitempty"`
}

// Ledger is a handle to the durable store. It is passed explicitly to
// every component that needs it; no package-level state.
type Ledger struct {
	db *badger.DB
}

// Open opens (creating if necessary) the ledger at path.
func Open(path string) (*Ledger, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return &PersistenceError{Op: "close", Err: err}
	}
	return nil
}

// Upsert writes an entry and its origin-id index keys in one transaction.
func (l *Ledger) Upsert(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return &PersistenceError{Op: "marshal entry", Err: err}
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(entryKeyPrefix+entry.ID), data); err != nil {
			return err
		}
		if entry.PelotonID != "" {
			if err := txn.Set([]byte(pelotonKeyPrefix+entry.PelotonID), []byte(entry.ID)); err != nil {
				return err
			}
		}
		if entry.GarminID != "" {
			if err := txn.Set([]byte(garminKeyPrefix+entry.GarminID), []byte(entry.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: "upsert " + entry.ID, Err: err}
	}
	return nil
}

// FindByID retrieves an entry by canonical identity.
func (l *Ledger) FindByID(ctx context.Context, id string) (*Entry, error) {
	var entry Entry
	err := l.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, entryKeyPrefix+id, &entry)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find " + id, Err: err}
	}
	return &entry, nil
}

// FindByPelotonID retrieves the entry referencing a Peloton workout id.
func (l *Ledger) FindByPelotonID(ctx context.Context, pelotonID string) (*Entry, error) {
	return l.findByIndex(pelotonKeyPrefix + pelotonID)
}

// FindByGarminID retrieves the entry referencing a Garmin activity id.
func (l *Ledger) FindByGarminID(ctx context.Context, garminID string) (*Entry, error) {
	return l.findByIndex(garminKeyPrefix + garminID)
}

func (l *Ledger) findByIndex(indexKey string) (*Entry, error) {
	var entry Entry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return readJSON(txn, entryKeyPrefix+id, &entry)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find index " + indexKey, Err: err}
	}
	return &entry, nil
}

// IsPelotonProcessed reports whether a Peloton workout already has an
// entry. Used by the cycle controller's filtering step.
func (l *Ledger) IsPelotonProcessed(ctx context.Context, pelotonID string) (bool, error) {
	return l.indexExists(pelotonKeyPrefix + pelotonID)
}

// IsGarminProcessed reports whether a Garmin activity already has an
// entry.
func (l *Ledger) IsGarminProcessed(ctx context.Context, garminID string) (bool, error) {
	return l.indexExists(garminKeyPrefix + garminID)
}

func (l *Ledger) indexExists(indexKey string) (bool, error) {
	var found bool
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(indexKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, &PersistenceError{Op: "exists " + indexKey, Err: err}
	}
	return found, nil
}

// EntriesAwaitingStage2 returns merged entries not yet published to
// Strava, in key order. The stage driver applies the type, duration and
// wait gates on top of this set.
func (l *Ledger) EntriesAwaitingStage2(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if entry.Status == StatusMerged && entry.SyncedAt == nil {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "scan awaiting stage2", Err: err}
	}
	return entries, nil
}

// MarkSynced transitions an entry to synced and records the publish
// timestamp, returning the updated entry.
func (l *Ledger) MarkSynced(ctx context.Context, id string, at time.Time) (*Entry, error) {
	var entry Entry
	err := l.db.Update(func(txn *badger.Txn) error {
		if err := readJSON(txn, entryKeyPrefix+id, &entry); err != nil {
			return err
		}
		entry.Status = StatusSynced
		entry.SyncedAt = &at
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set([]byte(entryKeyPrefix+id), data)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "mark synced " + id, Err: err}
	}
	return &entry, nil
}

// CountByStatus tallies ledger entries per lifecycle status.
func (l *Ledger) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts := make(map[Status]int)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			counts[entry.Status]++
		}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "count by status", Err: err}
	}
	return counts, nil
}

// SetLastSyncTime records when the last cycle completed.
func (l *Ledger) SetLastSyncTime(ctx context.Context, t time.Time) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastSyncKey), []byte(t.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return &PersistenceError{Op: "set last sync", Err: err}
	}
	return nil
}

// LastSyncTime returns the completion time of the last cycle, or the zero
// time if no cycle has completed yet.
func (l *Ledger) LastSyncTime(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastSyncKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, perr := time.Parse(time.RFC3339, string(val))
			if perr != nil {
				return perr
			}
			t = parsed
			return nil
		})
	})
	if err != nil {
		return time.Time{}, &PersistenceError{Op: "get last sync", Err: err}
	}
	return t, nil
}

// SetCredential persists a credential document (session, token set) for a
// remote service.
func (l *Ledger) SetCredential(ctx context.Context, service string, cred any) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return &PersistenceError{Op: "marshal credential " + service, Err: err}
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credKeyPrefix+service), data)
	})
	if err != nil {
		return &PersistenceError{Op: "set credential " + service, Err: err}
	}
	return nil
}

// Credential loads a credential document into out. Returns ErrNotFound
// when none has been stored.
func (l *Ledger) Credential(ctx context.Context, service string, out any) error {
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credKeyPrefix + service))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return &PersistenceError{Op: "get credential " + service, Err: err}
	}
	return nil
}

// readJSON reads and unmarshals a value inside a transaction. Returns
// ErrNotFound when the key is absent.
func readJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

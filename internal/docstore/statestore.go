// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// ErrStateConflict is returned by StateStore.Save when the persisted state's
// version moved since the caller loaded it. The caller reloads and reapplies
// its merge instead of clobbering a concurrent run's progress.
var ErrStateConflict = errors.New("docstore: backfill state version conflict")

// StateStore persists resumable backfill progress, one document per job.
type StateStore interface {
	// Load returns the persisted state for a job, or nil when the job has
	// never been saved.
	Load(ctx context.Context, job string) (*models.BackfillState, error)

	// Save persists the state under an optimistic-concurrency guard: the
	// state's Version must match the persisted one (0 for a first save).
	// On success the stored version is incremented.
	Save(ctx context.Context, job string, state *models.BackfillState) error

	// Delete clears a job's state entirely, returning every collection
	// cursor to not-started. This is the explicit external reset required
	// after a resolver-logic change forces a full re-sweep.
	Delete(ctx context.Context, job string) error
}

const stateKeyPrefix = "backfill:state:"

// BadgerStateStore implements StateStore on BadgerDB.
type BadgerStateStore struct {
	db *badger.DB
}

// NewBadgerStateStore creates a BadgerDB-backed backfill state store.
func NewBadgerStateStore(db *badger.DB) (*BadgerStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database handle required")
	}
	return &BadgerStateStore{db: db}, nil
}

// Load retrieves a job's state, or nil when absent.
func (s *BadgerStateStore) Load(ctx context.Context, job string) (*models.BackfillState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var state *models.BackfillState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKeyPrefix + job))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get state %q: %w", job, err)
		}
		return item.Value(func(val []byte) error {
			state = models.NewBackfillState()
			if err := json.Unmarshal(val, state); err != nil {
				return fmt.Errorf("decode state %q: %w", job, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Save persists the state if its Version matches the stored one, then
// increments the stored version. The read-check-write runs inside a single
// badger transaction, so two racing invocations cannot both succeed.
func (s *BadgerStateStore) Save(ctx context.Context, job string, state *models.BackfillState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("state required")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(stateKeyPrefix + job)

		var storedVersion int64
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			storedVersion = 0
		case err != nil:
			return fmt.Errorf("get state %q: %w", job, err)
		default:
			var stored models.BackfillState
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("decode state %q: %w", job, err)
			}
			storedVersion = stored.Version
		}

		if state.Version != storedVersion {
			return fmt.Errorf("%w: have %d, stored %d", ErrStateConflict, state.Version, storedVersion)
		}

		next := state.Clone()
		next.Version = storedVersion + 1
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode state %q: %w", job, err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set state %q: %w", job, err)
		}
		return nil
	})
}

// Delete clears a job's persisted state.
func (s *BadgerStateStore) Delete(ctx context.Context, job string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(stateKeyPrefix + job)); err != nil {
			return fmt.Errorf("delete state %q: %w", job, err)
		}
		return nil
	})
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// MemStore is an in-memory Store with the same semantics as BadgerStore.
// It exists so engine tests substitute the store boundary without a real
// database, per the injected-interface design.
//
// The error fields inject failures for exercising the engine's propagation
// policy; CommitSizes records the size of every Apply chunk for asserting
// the batch-chunking contract.
type MemStore struct {
	mu   sync.Mutex
	data map[string]map[string]json.RawMessage // collection -> id -> body

	// Failure injection. When set, the corresponding operation returns the
	// error without touching data.
	QueryErr    error
	ListErr     error
	GetMultiErr error
	ApplyErr    error

	// FailAfterCommits, when > 0, fails Apply after that many chunks have
	// committed (simulates a partial multi-chunk batch failure).
	FailAfterCommits int

	// CommitSizes records the operation count of each committed chunk.
	CommitSizes []int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]map[string]json.RawMessage)}
}

// Put stores a document, encoding v as its JSON body.
func (s *MemStore) Put(collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", Ref{collection, id}, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]json.RawMessage)
	}
	s.data[collection][id] = data
	return nil
}

// Get decodes a stored document into v, reporting whether it exists.
func (s *MemStore) Get(collection, id string, v any) (bool, error) {
	s.mu.Lock()
	data, ok := s.data[collection][id]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", Ref{collection, id}, err)
	}
	return true, nil
}

// Len returns the number of documents in a collection.
func (s *MemStore) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[collection])
}

func (s *MemStore) sortedIDs(collection string) []string {
	ids := make([]string, 0, len(s.data[collection]))
	for id := range s.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Query returns all documents matching every filter.
func (s *MemStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}

	var docs []Document
	for _, id := range s.sortedIDs(collection) {
		data := s.data[collection][id]
		if !matchesFilters(data, filters) {
			continue
		}
		docs = append(docs, Document{Collection: collection, ID: id, Data: data})
	}
	return docs, nil
}

// List pages through a collection ordered by ID, strictly after startAfter.
func (s *MemStore) List(ctx context.Context, collection, startAfter string, limit int) ([]Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		return nil, false, fmt.Errorf("list %s: limit must be positive, got %d", collection, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, false, s.ListErr
	}

	var docs []Document
	hasMore := false
	for _, id := range s.sortedIDs(collection) {
		if startAfter != "" && id <= startAfter {
			continue
		}
		if len(docs) == limit {
			hasMore = true
			break
		}
		docs = append(docs, Document{Collection: collection, ID: id, Data: s.data[collection][id]})
	}
	return docs, hasMore, nil
}

// GetMulti fetches documents by ID, omitting missing IDs.
func (s *MemStore) GetMulti(ctx context.Context, collection string, ids []string) (map[string]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetMultiErr != nil {
		return nil, s.GetMultiErr
	}

	result := make(map[string]Document, len(ids))
	for _, id := range ids {
		if data, ok := s.data[collection][id]; ok {
			result[id] = Document{Collection: collection, ID: id, Data: data}
		}
	}
	return result, nil
}

// Apply commits pending updates in chunks of at most MaxBatchOps, mirroring
// the chunk-independence contract of the production store.
func (s *MemStore) Apply(ctx context.Context, updates []PendingUpdate) error {
	for _, chunk := range chunkUpdates(updates, MaxBatchOps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		if s.ApplyErr != nil {
			s.mu.Unlock()
			return s.ApplyErr
		}
		if s.FailAfterCommits > 0 && len(s.CommitSizes) >= s.FailAfterCommits {
			s.mu.Unlock()
			return fmt.Errorf("injected failure after %d commits", s.FailAfterCommits)
		}
		for _, u := range chunk {
			data, ok := s.data[u.Ref.Collection][u.Ref.ID]
			if !ok {
				continue
			}
			merged, err := mergeFields(data, u)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			s.data[u.Ref.Collection][u.Ref.ID] = merged
		}
		s.CommitSizes = append(s.CommitSizes, len(chunk))
		s.mu.Unlock()
	}
	return nil
}

// MemStateStore is an in-memory StateStore with the same optimistic
// concurrency semantics as BadgerStateStore.
type MemStateStore struct {
	mu     sync.Mutex
	states map[string]*models.BackfillState

	LoadErr error
	SaveErr error
}

// NewMemStateStore creates an empty in-memory state store.
func NewMemStateStore() *MemStateStore {
	return &MemStateStore{states: make(map[string]*models.BackfillState)}
}

// Load returns the stored state for a job, or nil when absent.
func (s *MemStateStore) Load(ctx context.Context, job string) (*models.BackfillState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	state, ok := s.states[job]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

// Save persists the state under the version guard.
func (s *MemStateStore) Save(ctx context.Context, job string, state *models.BackfillState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("state required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}

	var storedVersion int64
	if stored, ok := s.states[job]; ok {
		storedVersion = stored.Version
	}
	if state.Version != storedVersion {
		return fmt.Errorf("%w: have %d, stored %d", ErrStateConflict, state.Version, storedVersion)
	}

	next := state.Clone()
	next.Version = storedVersion + 1
	s.states[job] = next
	return nil
}

// Delete clears a job's state.
func (s *MemStateStore) Delete(ctx context.Context, job string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, job)
	return nil
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MaxBatchOps is the hard ceiling on write operations per atomic commit.
// Update lists longer than this are chunked into sequential independent
// commits.
const MaxBatchOps = 500

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("docstore: store is closed")

// Filter is an equality condition on a top-level document field.
type Filter struct {
	Field string
	Value string
}

// Ref identifies one document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Document is one stored record: its location plus the raw JSON body.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", Ref{d.Collection, d.ID}, err)
	}
	return nil
}

// PendingUpdate is a queued field diff against one document. UpdatedAt is
// always caller-supplied so the write path stays deterministic; the store
// never reads the wall clock.
type PendingUpdate struct {
	Ref       Ref
	Fields    map[string]any
	UpdatedAt time.Time
}

// Store is the query/write contract the denormalization engine consumes.
//
// Implementations must order List results by document ID ascending and
// treat startAfter as exclusive, so repeated cursor-to-cursor paging visits
// every document exactly once per pass.
type Store interface {
	// Query returns all documents in a collection matching every filter.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)

	// List returns up to limit documents ordered by ID, strictly after
	// startAfter (empty = from the beginning). The second return reports
	// whether more documents remain past the returned page.
	List(ctx context.Context, collection, startAfter string, limit int) ([]Document, bool, error)

	// GetMulti fetches documents by ID, returning a sparse map that omits
	// missing IDs.
	GetMulti(ctx context.Context, collection string, ids []string) (map[string]Document, error)

	// Apply commits the pending updates as one or more atomic batches of at
	// most MaxBatchOps operations each. Chunks are independent: a failure
	// in a later chunk leaves earlier chunks committed.
	Apply(ctx context.Context, updates []PendingUpdate) error
}

// chunkUpdates splits updates into deterministic chunks of at most size
// elements, preserving order.
func chunkUpdates(updates []PendingUpdate, size int) [][]PendingUpdate {
	if size <= 0 {
		size = MaxBatchOps
	}
	var chunks [][]PendingUpdate
	for len(updates) > size {
		chunks = append(chunks, updates[:size])
		updates = updates[size:]
	}
	if len(updates) > 0 {
		chunks = append(chunks, updates)
	}
	return chunks
}

// mergeFields applies a field diff onto a raw JSON document body, returning
// the re-encoded body. A nil field value stores JSON null. The updatedAt
// field is set from the update's caller-supplied timestamp.
func mergeFields(data json.RawMessage, u PendingUpdate) (json.RawMessage, error) {
	doc := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s for merge: %w", u.Ref, err)
		}
	}
	for k, v := range u.Fields {
		doc[k] = v
	}
	if !u.UpdatedAt.IsZero() {
		doc["updatedAt"] = u.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s after merge: %w", u.Ref, err)
	}
	return merged, nil
}

// fieldString extracts a top-level field from a raw JSON body as a string.
// Missing fields and non-string values return "".
func fieldString(data json.RawMessage, field string) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	raw, ok := doc[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// matchesFilters reports whether a document body satisfies every equality
// filter.
func matchesFilters(data json.RawMessage, filters []Filter) bool {
	for _, f := range filters {
		if fieldString(data, f.Field) != f.Value {
			return false
		}
	}
	return true
}

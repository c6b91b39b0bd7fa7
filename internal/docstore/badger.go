// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage.
const (
	docKeyPrefix   = "doc:"
	indexKeyPrefix = "idx:"
)

// DefaultIndexes lists the foreign-key fields maintained as secondary
// indexes per collection. Equality queries on these fields resolve via
// index-prefix iteration instead of a collection scan.
var DefaultIndexes = map[string][]string{
	"shares":       {"ownerId", "caregiverUserId"},
	"shareInvites": {"ownerId"},
	"reminders":    {"userId", "medicationId"},
}

// BadgerStore implements Store using BadgerDB for durable storage.
//
// Documents live under doc:<collection>:<id>, so key-ordered iteration over
// the doc prefix yields a stable, ID-ordered full scan - the property List
// cursors depend on. Index entries live under
// idx:<collection>:<field>:<value>:<id> and are maintained atomically with
// the document in the same transaction.
type BadgerStore struct {
	db      *badger.DB
	indexes map[string][]string
}

// NewBadgerStore creates a BadgerDB-backed store. A nil indexes map uses
// DefaultIndexes.
func NewBadgerStore(db *badger.DB, indexes map[string][]string) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database handle required")
	}
	if indexes == nil {
		indexes = DefaultIndexes
	}
	return &BadgerStore{db: db, indexes: indexes}, nil
}

func docKey(collection, id string) []byte {
	return []byte(docKeyPrefix + collection + ":" + id)
}

func indexKey(collection, field, value, id string) []byte {
	return []byte(indexKeyPrefix + collection + ":" + field + ":" + value + ":" + id)
}

// indexedField reports whether field is indexed for collection.
func (s *BadgerStore) indexedField(collection, field string) bool {
	for _, f := range s.indexes[collection] {
		if f == field {
			return true
		}
	}
	return false
}

// Put stores a document and its index entries. Used by the write paths that
// create source and dependent records; the denormalization engine itself
// only updates through Apply.
func (s *BadgerStore) Put(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return s.putLocked(txn, doc)
	})
}

func (s *BadgerStore) putLocked(txn *badger.Txn, doc Document) error {
	key := docKey(doc.Collection, doc.ID)

	// Drop index entries for the previous version, if any.
	if item, err := txn.Get(key); err == nil {
		var prev []byte
		prev, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read previous %s: %w", Ref{doc.Collection, doc.ID}, err)
		}
		if err := s.deleteIndexEntries(txn, doc.Collection, doc.ID, prev); err != nil {
			return err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("get %s: %w", Ref{doc.Collection, doc.ID}, err)
	}

	if err := txn.Set(key, doc.Data); err != nil {
		return fmt.Errorf("set %s: %w", Ref{doc.Collection, doc.ID}, err)
	}
	return s.writeIndexEntries(txn, doc.Collection, doc.ID, doc.Data)
}

func (s *BadgerStore) writeIndexEntries(txn *badger.Txn, collection, id string, data json.RawMessage) error {
	for _, field := range s.indexes[collection] {
		value := fieldString(data, field)
		if value == "" {
			continue
		}
		if err := txn.Set(indexKey(collection, field, value, id), []byte(id)); err != nil {
			return fmt.Errorf("set index %s.%s: %w", collection, field, err)
		}
	}
	return nil
}

func (s *BadgerStore) deleteIndexEntries(txn *badger.Txn, collection, id string, data json.RawMessage) error {
	for _, field := range s.indexes[collection] {
		value := fieldString(data, field)
		if value == "" {
			continue
		}
		if err := txn.Delete(indexKey(collection, field, value, id)); err != nil {
			return fmt.Errorf("delete index %s.%s: %w", collection, field, err)
		}
	}
	return nil
}

// Query returns all documents matching every filter. The first indexed
// filter drives an index-prefix iteration; remaining filters are applied to
// the decoded documents.
func (s *BadgerStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var driving *Filter
	for i := range filters {
		if s.indexedField(collection, filters[i].Field) {
			driving = &filters[i]
			break
		}
	}

	var docs []Document
	err := s.db.View(func(txn *badger.Txn) error {
		if driving == nil {
			return s.scanCollection(txn, collection, filters, &docs)
		}

		prefix := []byte(indexKeyPrefix + collection + ":" + driving.Field + ":" + driving.Value + ":")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var ids []string
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}

		for _, id := range ids {
			item, err := txn.Get(docKey(collection, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // dangling index entry
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", Ref{collection, id}, err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", Ref{collection, id}, err)
			}
			if !matchesFilters(data, filters) {
				continue
			}
			docs = append(docs, Document{Collection: collection, ID: id, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *BadgerStore) scanCollection(txn *badger.Txn, collection string, filters []Filter, out *[]Document) error {
	prefix := []byte(docKeyPrefix + collection + ":")
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id := string(item.Key()[len(prefix):])
		data, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", Ref{collection, id}, err)
		}
		if !matchesFilters(data, filters) {
			continue
		}
		*out = append(*out, Document{Collection: collection, ID: id, Data: data})
	}
	return nil
}

// List pages through a collection ordered by document ID, strictly after
// startAfter. It fetches limit+1 internally to report whether more pages
// remain.
func (s *BadgerStore) List(ctx context.Context, collection, startAfter string, limit int) ([]Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		return nil, false, fmt.Errorf("list %s: limit must be positive, got %d", collection, limit)
	}

	prefix := []byte(docKeyPrefix + collection + ":")
	var docs []Document
	hasMore := false

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()

		if startAfter != "" {
			it.Seek(docKey(collection, startAfter))
			if it.Valid() && bytes.Equal(it.Item().Key(), docKey(collection, startAfter)) {
				it.Next() // cursor is exclusive
			}
		} else {
			it.Rewind()
		}

		for ; it.Valid(); it.Next() {
			if len(docs) == limit {
				hasMore = true
				return nil
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", Ref{collection, id}, err)
			}
			docs = append(docs, Document{Collection: collection, ID: id, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return docs, hasMore, nil
}

// GetMulti fetches documents by ID, omitting missing IDs from the result.
func (s *BadgerStore) GetMulti(ctx context.Context, collection string, ids []string) (map[string]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]Document, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(docKey(collection, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", Ref{collection, id}, err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", Ref{collection, id}, err)
			}
			result[id] = Document{Collection: collection, ID: id, Data: data}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Apply commits pending updates in chunks of at most MaxBatchOps. Each
// chunk is one badger transaction; chunks are independent of each other.
// A document deleted between queue and commit is skipped, not an error -
// the next backfill pass observes the final state.
func (s *BadgerStore) Apply(ctx context.Context, updates []PendingUpdate) error {
	for _, chunk := range chunkUpdates(updates, MaxBatchOps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, u := range chunk {
				if err := s.applyOne(txn, u); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("commit batch of %d updates: %w", len(chunk), err)
		}
		recordBatchCommit(len(chunk))
	}
	return nil
}

func (s *BadgerStore) applyOne(txn *badger.Txn, u PendingUpdate) error {
	key := docKey(u.Ref.Collection, u.Ref.ID)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", u.Ref, err)
	}
	prev, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("read %s: %w", u.Ref, err)
	}

	merged, err := mergeFields(prev, u)
	if err != nil {
		return err
	}
	if err := s.deleteIndexEntries(txn, u.Ref.Collection, u.Ref.ID, prev); err != nil {
		return err
	}
	if err := txn.Set(key, merged); err != nil {
		return fmt.Errorf("set %s: %w", u.Ref, err)
	}
	return s.writeIndexEntries(txn, u.Ref.Collection, u.Ref.ID, merged)
}

// Delete removes a document and its index entries.
func (s *BadgerStore) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := docKey(ref.Collection, ref.ID)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", ref, err)
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", ref, err)
		}
		if err := s.deleteIndexEntries(txn, ref.Collection, ref.ID, data); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
		return nil
	})
}

// CollectionIDs returns all document IDs in a collection, sorted. Intended
// for diagnostics and tests.
func (s *BadgerStore) CollectionIDs(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(docKeyPrefix + collection + ":")
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return db
}

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(openTestBadger(t), nil)
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	return s
}

func putJSON(t *testing.T, s *BadgerStore, collection, id string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(context.Background(), Document{Collection: collection, ID: id, Data: data}); err != nil {
		t.Fatalf("put %s/%s: %v", collection, id, err)
	}
}

func TestBadgerStoreQueryUsesIndex(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	putJSON(t, s, "shares", "s1", map[string]string{"id": "s1", "ownerId": "u1"})
	putJSON(t, s, "shares", "s2", map[string]string{"id": "s2", "ownerId": "u1"})
	putJSON(t, s, "shares", "s3", map[string]string{"id": "s3", "ownerId": "u2"})

	docs, err := s.Query(ctx, "shares", Filter{Field: "ownerId", Value: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	for _, d := range docs {
		if fieldString(d.Data, "ownerId") != "u1" {
			t.Errorf("document %s has wrong owner", d.ID)
		}
	}
}

func TestBadgerStoreQueryCompoundFilters(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	putJSON(t, s, "reminders", "r1", map[string]string{"id": "r1", "userId": "u1", "medicationId": "m1"})
	putJSON(t, s, "reminders", "r2", map[string]string{"id": "r2", "userId": "u1", "medicationId": "m2"})
	putJSON(t, s, "reminders", "r3", map[string]string{"id": "r3", "userId": "u2", "medicationId": "m1"})

	docs, err := s.Query(ctx, "reminders",
		Filter{Field: "userId", Value: "u1"},
		Filter{Field: "medicationId", Value: "m1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "r1" {
		t.Errorf("got %+v, want only r1", docs)
	}
}

func TestBadgerStoreQueryAfterIndexFieldChange(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	putJSON(t, s, "shares", "s1", map[string]string{"id": "s1", "ownerId": "u1"})
	// Rewrite moves the document to a new owner; the old index entry must go.
	putJSON(t, s, "shares", "s1", map[string]string{"id": "s1", "ownerId": "u9"})

	docs, err := s.Query(ctx, "shares", Filter{Field: "ownerId", Value: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("stale index entry returned %d documents", len(docs))
	}

	docs, err = s.Query(ctx, "shares", Filter{Field: "ownerId", Value: "u9"})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("new owner query returned %d documents, want 1", len(docs))
	}
}

func TestBadgerStoreListExclusiveCursor(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("s%02d", i)
		putJSON(t, s, "shares", id, map[string]string{"id": id})
	}

	docs, hasMore, err := s.List(ctx, "shares", "", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 || !hasMore {
		t.Fatalf("first page len=%d hasMore=%v", len(docs), hasMore)
	}
	if docs[0].ID != "s00" || docs[2].ID != "s02" {
		t.Errorf("first page IDs = %s..%s", docs[0].ID, docs[2].ID)
	}

	docs, hasMore, err = s.List(ctx, "shares", "s02", 3)
	if err != nil {
		t.Fatal(err)
	}
	if docs[0].ID != "s03" {
		t.Errorf("cursor not exclusive: first ID %s", docs[0].ID)
	}
	if !hasMore {
		t.Error("expected a third page")
	}

	docs, hasMore, err = s.List(ctx, "shares", "s05", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || hasMore {
		t.Errorf("final page len=%d hasMore=%v, want 1/false", len(docs), hasMore)
	}
}

func TestBadgerStoreApplyMergesAndSkipsMissing(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	putJSON(t, s, "shares", "s1", models.Share{ID: "s1", OwnerID: "u1"})

	err := s.Apply(ctx, []PendingUpdate{
		{
			Ref:       Ref{Collection: "shares", ID: "s1"},
			Fields:    map[string]any{"ownerName": "Alice", "ownerEmail": "alice@example.com"},
			UpdatedAt: ts,
		},
		{
			Ref:       Ref{Collection: "shares", ID: "deleted-mid-flight"},
			Fields:    map[string]any{"ownerName": "Alice"},
			UpdatedAt: ts,
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	docs, err := s.GetMulti(ctx, "shares", []string{"s1"})
	if err != nil {
		t.Fatal(err)
	}
	var share models.Share
	if err := docs["s1"].Decode(&share); err != nil {
		t.Fatal(err)
	}
	if share.OwnerName == nil || *share.OwnerName != "Alice" {
		t.Errorf("OwnerName = %v, want Alice", share.OwnerName)
	}
	// Untouched fields survive the merge.
	if share.OwnerID != "u1" {
		t.Errorf("OwnerID = %q, want u1", share.OwnerID)
	}
	if got := fieldString(docs["s1"].Data, "updatedAt"); got != ts.Format(time.RFC3339Nano) {
		t.Errorf("updatedAt = %q", got)
	}
}

func TestBadgerStoreDeleteRemovesIndexEntries(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	putJSON(t, s, "shares", "s1", map[string]string{"id": "s1", "ownerId": "u1"})
	if err := s.Delete(ctx, Ref{Collection: "shares", ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	docs, err := s.Query(ctx, "shares", Filter{Field: "ownerId", Value: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("deleted document still queryable: %v", docs)
	}

	ids, err := s.CollectionIDs(ctx, "shares")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("CollectionIDs = %v, want empty", ids)
	}
}

func TestBadgerStateStoreConflict(t *testing.T) {
	db := openTestBadger(t)
	s, err := NewBadgerStateStore(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	state := models.NewBackfillState()
	state.Cursors["shares"] = "s100"
	if err := s.Save(ctx, "denormalization", state); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	loaded, err := s.Load(ctx, "denormalization")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.Version != 1 {
		t.Fatalf("loaded = %+v, want version 1", loaded)
	}

	stale := models.NewBackfillState() // Version 0 vs stored 1
	if err := s.Save(ctx, "denormalization", stale); !errors.Is(err, ErrStateConflict) {
		t.Errorf("stale save err = %v, want ErrStateConflict", err)
	}

	if err := s.Save(ctx, "denormalization", loaded); err != nil {
		t.Fatalf("save current version: %v", err)
	}

	if err := s.Delete(ctx, "denormalization"); err != nil {
		t.Fatal(err)
	}
	gone, err := s.Load(ctx, "denormalization")
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Errorf("state after delete = %+v, want nil", gone)
	}
}

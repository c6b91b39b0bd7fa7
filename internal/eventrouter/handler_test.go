// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package eventrouter

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/denorm"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/docstore"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

func newTestHandler(t *testing.T, store *docstore.MemStore, enabled func() bool) *ChangeHandler {
	t.Helper()
	p, err := denorm.NewPropagator(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPropagator: %v", err)
	}
	h, err := NewChangeHandler(p, enabled, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewChangeHandler: %v", err)
	}
	return h
}

func newUserChangeMessage(t *testing.T, before, after *models.UserProfile) *message.Message {
	t.Helper()
	id := "u?"
	if after != nil {
		id = after.ID
	} else if before != nil {
		id = before.ID
	}
	event := models.NewChangeEvent(models.EntityUser, id)
	if before != nil {
		data, err := json.Marshal(before)
		if err != nil {
			t.Fatal(err)
		}
		event.Before = data
	}
	if after != nil {
		data, err := json.Marshal(after)
		if err != nil {
			t.Fatal(err)
		}
		event.After = data
	}
	payload, err := SerializeEvent(event)
	if err != nil {
		t.Fatal(err)
	}
	return message.NewMessage(event.EventID, payload)
}

func TestHandleAppliesUserChange(t *testing.T) {
	store := docstore.NewMemStore()
	if err := store.Put(models.CollectionShares, "s1", map[string]any{
		"id": "s1", "ownerId": "u1", "ownerName": "Alice", "ownerEmail": "alice@example.com",
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHandler(t, store, nil)
	msg := newUserChangeMessage(t,
		&models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"},
		&models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice@example.com"})

	if err := h.Handle(msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var share models.Share
	ok, err := store.Get(models.CollectionShares, "s1", &share)
	if err != nil || !ok {
		t.Fatalf("get s1: ok=%v err=%v", ok, err)
	}
	if share.OwnerName == nil || *share.OwnerName != "Alice B." {
		t.Errorf("OwnerName = %v, want Alice B.", share.OwnerName)
	}
}

func TestHandleKillSwitchAcksWithoutProcessing(t *testing.T) {
	store := docstore.NewMemStore()
	if err := store.Put(models.CollectionShares, "s1", map[string]any{
		"id": "s1", "ownerId": "u1", "ownerName": "Alice",
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHandler(t, store, func() bool { return false })
	msg := newUserChangeMessage(t,
		&models.UserProfile{ID: "u1", DisplayName: "Alice"},
		&models.UserProfile{ID: "u1", DisplayName: "Alice B."})

	if err := h.Handle(msg); err != nil {
		t.Fatalf("Handle with disabled propagation: %v", err)
	}

	// Disabled means acked and dropped, not retried later.
	var share models.Share
	if _, err := store.Get(models.CollectionShares, "s1", &share); err != nil {
		t.Fatal(err)
	}
	if share.OwnerName == nil || *share.OwnerName != "Alice" {
		t.Errorf("OwnerName = %v, want untouched Alice", share.OwnerName)
	}
}

func TestHandleMalformedPayloadFails(t *testing.T) {
	h := newTestHandler(t, docstore.NewMemStore(), nil)
	msg := message.NewMessage("bad-1", []byte(`{"event_id":`))
	if err := h.Handle(msg); err == nil {
		t.Error("expected decode error so the message is retried and poisoned")
	}
}

func TestHandleDeletionIsAckedNoOp(t *testing.T) {
	store := docstore.NewMemStore()
	h := newTestHandler(t, store, nil)
	msg := newUserChangeMessage(t, &models.UserProfile{ID: "u1", DisplayName: "Alice"}, nil)

	if err := h.Handle(msg); err != nil {
		t.Fatalf("Handle deletion: %v", err)
	}
	if len(store.CommitSizes) != 0 {
		t.Errorf("deletion wrote %v commits, want none", store.CommitSizes)
	}
}

func TestHandleRedeliveryIsIdempotent(t *testing.T) {
	store := docstore.NewMemStore()
	if err := store.Put(models.CollectionShares, "s1", map[string]any{
		"id": "s1", "ownerId": "u1", "ownerName": "Alice",
	}); err != nil {
		t.Fatal(err)
	}

	h := newTestHandler(t, store, nil)
	msg := newUserChangeMessage(t,
		&models.UserProfile{ID: "u1", DisplayName: "Alice"},
		&models.UserProfile{ID: "u1", DisplayName: "Alice B."})

	if err := h.Handle(msg); err != nil {
		t.Fatal(err)
	}
	commits := len(store.CommitSizes)
	if err := h.Handle(msg); err != nil {
		t.Fatal(err)
	}
	if len(store.CommitSizes) != commits {
		t.Errorf("redelivery committed again: %v", store.CommitSizes)
	}
}

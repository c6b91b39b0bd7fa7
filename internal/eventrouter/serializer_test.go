// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package eventrouter

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

func TestSerializeEventRoundTrip(t *testing.T) {
	event := models.NewChangeEvent(models.EntityUser, "u1")
	event.Before = json.RawMessage(`{"id":"u1","displayName":"Alice"}`)
	event.After = json.RawMessage(`{"id":"u1","displayName":"Alice B."}`)

	data, err := SerializeEvent(event)
	if err != nil {
		t.Fatalf("SerializeEvent: %v", err)
	}

	decoded, err := DeserializeEvent(data)
	if err != nil {
		t.Fatalf("DeserializeEvent: %v", err)
	}
	if decoded.EventID != event.EventID {
		t.Errorf("EventID = %q, want %q", decoded.EventID, event.EventID)
	}
	if decoded.EntityType != models.EntityUser || decoded.EntityID != "u1" {
		t.Errorf("envelope = %s/%s", decoded.EntityType, decoded.EntityID)
	}
	before, after, err := decoded.UserSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if before == nil || before.DisplayName != "Alice" {
		t.Errorf("before = %+v", before)
	}
	if after == nil || after.DisplayName != "Alice B." {
		t.Errorf("after = %+v", after)
	}
}

func TestSerializeEventRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		event *models.ChangeEvent
	}{
		{"missing event ID", &models.ChangeEvent{EntityType: models.EntityUser, EntityID: "u1", OccurredAt: time.Now()}},
		{"unknown entity type", &models.ChangeEvent{EventID: "e1", EntityType: "share", EntityID: "s1", OccurredAt: time.Now()}},
		{"missing entity ID", &models.ChangeEvent{EventID: "e1", EntityType: models.EntityUser, OccurredAt: time.Now()}},
		{"zero timestamp", &models.ChangeEvent{EventID: "e1", EntityType: models.EntityUser, EntityID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SerializeEvent(tt.event); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDeserializeEventBadPayload(t *testing.T) {
	if _, err := DeserializeEvent([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := DeserializeEvent([]byte(`{"event_id":"e1"}`)); err == nil {
		t.Error("expected validation error for incomplete envelope")
	}
}

func TestTopicFor(t *testing.T) {
	if topic, err := TopicFor(models.EntityUser); err != nil || topic != TopicUserChanges {
		t.Errorf("user topic = %q, %v", topic, err)
	}
	if topic, err := TopicFor(models.EntityMedication); err != nil || topic != TopicMedicationChanges {
		t.Errorf("medication topic = %q, %v", topic, err)
	}
	if _, err := TopicFor("share"); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

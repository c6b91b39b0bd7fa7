// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EntityType identifies which source entity a change event refers to.
type EntityType string

// Supported source entity types.
const (
	EntityUser       EntityType = "user"
	EntityMedication EntityType = "medication"
)

// ChangeEvent is the canonical envelope for a source-entity write, delivered
// at-least-once by the hosting platform whenever an entity is created,
// updated, or deleted.
//
// Before and After carry the raw entity snapshots; either may be absent
// (nil Before = creation, nil After = deletion). The engine no-ops on
// deletion events - dependents referencing a deleted source keep their
// last denormalized values.
type ChangeEvent struct {
	EventID    string          `json:"event_id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewChangeEvent creates an event with a unique ID and timestamp.
func NewChangeEvent(entityType EntityType, entityID string) *ChangeEvent {
	return &ChangeEvent{
		EventID:    uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate checks required fields and returns an error if validation fails.
func (e *ChangeEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EntityType != EntityUser && e.EntityType != EntityMedication {
		return fmt.Errorf("unknown entity_type: %q", e.EntityType)
	}
	if e.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// UserSnapshots decodes the before/after snapshots as user profiles.
// A missing snapshot decodes to nil.
func (e *ChangeEvent) UserSnapshots() (before, after *UserProfile, err error) {
	if len(e.Before) > 0 {
		before = &UserProfile{}
		if err := json.Unmarshal(e.Before, before); err != nil {
			return nil, nil, fmt.Errorf("decode before snapshot: %w", err)
		}
	}
	if len(e.After) > 0 {
		after = &UserProfile{}
		if err := json.Unmarshal(e.After, after); err != nil {
			return nil, nil, fmt.Errorf("decode after snapshot: %w", err)
		}
	}
	return before, after, nil
}

// MedicationSnapshots decodes the before/after snapshots as medications.
// A missing snapshot decodes to nil.
func (e *ChangeEvent) MedicationSnapshots() (before, after *Medication, err error) {
	if len(e.Before) > 0 {
		before = &Medication{}
		if err := json.Unmarshal(e.Before, before); err != nil {
			return nil, nil, fmt.Errorf("decode before snapshot: %w", err)
		}
	}
	if len(e.After) > 0 {
		after = &Medication{}
		if err := json.Unmarshal(e.After, after); err != nil {
			return nil, nil, fmt.Errorf("decode after snapshot: %w", err)
		}
	}
	return before, after, nil
}

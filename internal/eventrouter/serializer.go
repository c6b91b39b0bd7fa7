// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package eventrouter

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// Topics change events are published on, one per source entity type.
const (
	TopicUserChanges       = "lumimd.users.changed"
	TopicMedicationChanges = "lumimd.medications.changed"
)

// MetadataEntityType is the message metadata key carrying the entity type.
const MetadataEntityType = "entity_type"

// SerializeEvent marshals a change event to JSON after validating it.
func SerializeEvent(event *models.ChangeEvent) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// DeserializeEvent unmarshals JSON bytes into a change event and validates
// the envelope.
func DeserializeEvent(data []byte) (*models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	return &event, nil
}

// TopicFor returns the publish topic for an entity type.
func TopicFor(entityType models.EntityType) (string, error) {
	switch entityType {
	case models.EntityUser:
		return TopicUserChanges, nil
	case models.EntityMedication:
		return TopicMedicationChanges, nil
	default:
		return "", fmt.Errorf("unknown entity_type: %q", entityType)
	}
}

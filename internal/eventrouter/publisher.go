// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package eventrouter

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// ChangePublisher publishes source-entity change events on their per-type
// topics. Application write paths call this after committing a user or
// medication mutation.
type ChangePublisher struct {
	publisher message.Publisher
}

// NewChangePublisher wraps a Watermill publisher.
func NewChangePublisher(publisher message.Publisher) (*ChangePublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	return &ChangePublisher{publisher: publisher}, nil
}

// Publish validates, serializes, and publishes one change event. The event
// ID doubles as the message UUID so JetStream deduplication applies.
func (p *ChangePublisher) Publish(event *models.ChangeEvent) error {
	topic, err := TopicFor(event.EntityType)
	if err != nil {
		return err
	}

	payload, err := SerializeEvent(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.EventID, payload)
	msg.Metadata.Set(MetadataEntityType, string(event.EntityType))

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s event %s: %w", event.EntityType, event.EventID, err)
	}
	return nil
}

// Close releases the underlying publisher.
func (p *ChangePublisher) Close() error {
	return p.publisher.Close()
}

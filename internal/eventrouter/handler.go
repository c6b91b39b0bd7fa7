// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package eventrouter

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/denorm"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/metrics"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// ChangeHandler decodes delivered change events and invokes the propagator.
//
// Errors are returned to the router rather than logged and swallowed: the
// Retry middleware redelivers, and permanent failures land on the poison
// queue. Successful no-ops (deleted entity, resolver reports no change,
// kill switch) ack immediately.
type ChangeHandler struct {
	propagator *denorm.Propagator
	enabled    func() bool
	logger     zerolog.Logger
}

// NewChangeHandler creates a handler. The enabled func is the process-wide
// propagation kill switch; nil means always enabled.
func NewChangeHandler(propagator *denorm.Propagator, enabled func() bool, logger zerolog.Logger) (*ChangeHandler, error) {
	if propagator == nil {
		return nil, fmt.Errorf("propagator required")
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &ChangeHandler{
		propagator: propagator,
		enabled:    enabled,
		logger:     logger.With().Str("component", "change-handler").Logger(),
	}, nil
}

// Handle processes one delivered change event. It implements Watermill's
// NoPublishHandlerFunc.
func (h *ChangeHandler) Handle(msg *message.Message) error {
	event, err := DeserializeEvent(msg.Payload)
	if err != nil {
		metrics.PropagationEventsTotal.WithLabelValues("unknown", "error").Inc()
		return fmt.Errorf("decode change event %s: %w", msg.UUID, err)
	}

	entityType := string(event.EntityType)
	if !h.enabled() {
		metrics.PropagationEventsTotal.WithLabelValues(entityType, "disabled").Inc()
		h.logger.Debug().
			Str("event_id", event.EventID).
			Msg("Propagation disabled, event acked without processing")
		return nil
	}

	start := time.Now()
	result, err := h.dispatch(msg, event)
	if err != nil {
		metrics.PropagationEventsTotal.WithLabelValues(entityType, "error").Inc()
		return err
	}
	metrics.PropagationDuration.WithLabelValues(entityType).Observe(time.Since(start).Seconds())

	outcome := "applied"
	switch {
	case len(event.After) == 0:
		outcome = "skipped_deleted"
	case result.Total() == 0:
		outcome = "no_change"
	}
	metrics.PropagationEventsTotal.WithLabelValues(entityType, outcome).Inc()
	for collection, count := range result.Updated {
		metrics.PropagationUpdatesTotal.WithLabelValues(collection).Add(float64(count))
	}

	h.logger.Debug().
		Str("event_id", event.EventID).
		Str("entity_type", entityType).
		Str("outcome", outcome).
		Int("updated", result.Total()).
		Msg("Change event processed")
	return nil
}

// dispatch routes the event to the propagator for its entity type. The
// event's occurred-at timestamp becomes the write timestamp, keeping the
// propagation path deterministic under redelivery.
func (h *ChangeHandler) dispatch(msg *message.Message, event *models.ChangeEvent) (*denorm.PropagationResult, error) {
	ctx := msg.Context()

	switch event.EntityType {
	case models.EntityUser:
		before, after, err := event.UserSnapshots()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", event.EventID, err)
		}
		return h.propagator.ApplyUserChange(ctx, before, after, event.OccurredAt)

	case models.EntityMedication:
		before, after, err := event.MedicationSnapshots()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", event.EventID, err)
		}
		return h.propagator.ApplyMedicationChange(ctx, before, after, event.OccurredAt)

	default:
		// Validate() rejects unknown types before we get here.
		return nil, fmt.Errorf("event %s: unhandled entity_type %q", event.EventID, event.EntityType)
	}
}

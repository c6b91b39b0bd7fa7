// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package eventrouter consumes source-entity change events and drives the
// live propagation path.
//
// Change events are delivered at-least-once over NATS JetStream via
// Watermill. The router wraps the propagation handler in Recoverer, Retry,
// and PoisonQueue middleware: a handler error is retried with exponential
// backoff and eventually routed to the dead-letter topic, never silently
// absorbed. Because propagation is idempotent, event redelivery produces
// no duplicate writes.
//
// A process-wide kill switch (config propagation.enabled) acks events
// without touching the store, disabling live propagation independently of
// the backfill job.
package eventrouter

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package models

import "time"

// CollectionRunStats holds the per-collection counters from the most recent
// backfill invocation.
type CollectionRunStats struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
}

// BackfillState is the persisted, resumable progress of one backfill job.
//
// Cursors maps collection name to the last document ID scanned; an absent
// entry means that collection has not been started. CompletedAt is nil while
// any tracked collection still has unscanned pages.
//
// Version supports optimistic concurrency: the state store rejects a Save
// whose Version does not match the currently persisted one, so two racing
// backfill invocations cannot silently clobber each other's cursors.
type BackfillState struct {
	Cursors         map[string]string             `json:"cursors"`
	PageSize        int                           `json:"pageSize"`
	LastProcessedAt time.Time                     `json:"lastProcessedAt"`
	LastRun         map[string]CollectionRunStats `json:"lastRun"`
	CompletedAt     *time.Time                    `json:"completedAt"`
	Version         int64                         `json:"version"`
}

// NewBackfillState returns an empty, not-started state.
func NewBackfillState() *BackfillState {
	return &BackfillState{
		Cursors: make(map[string]string),
		LastRun: make(map[string]CollectionRunStats),
	}
}

// Clone returns a deep copy, so in-memory mutation never aliases a stored state.
func (s *BackfillState) Clone() *BackfillState {
	c := &BackfillState{
		Cursors:         make(map[string]string, len(s.Cursors)),
		PageSize:        s.PageSize,
		LastProcessedAt: s.LastProcessedAt,
		LastRun:         make(map[string]CollectionRunStats, len(s.LastRun)),
		Version:         s.Version,
	}
	for k, v := range s.Cursors {
		c.Cursors[k] = v
	}
	for k, v := range s.LastRun {
		c.LastRun[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

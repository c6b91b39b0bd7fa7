// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package denorm is the denormalization consistency engine.
//
// Dependent records (shares, share invites, medication reminders) carry
// denormalized copies of fields owned by source entities (user profiles,
// medications) so read paths avoid per-item joins. This package keeps those
// copies eventually consistent through two independent mechanisms:
//
//   - Live propagation: a source-entity change event runs a pure change
//     resolver; when the derived fields changed, every affected dependent
//     is queried by foreign key, diffed against its current stored values,
//     and corrected in bounded batch commits.
//
//   - Backfill: a resumable, cursor-paginated full scan per dependent
//     collection recomputes desired values directly from current source
//     data and corrects any drift, covering pre-existing data, missed
//     events, and resolver-logic changes.
//
// Both paths converge to the same desired state and are idempotent, so
// at-least-once event delivery and overlapping backfill runs produce wasted
// work at worst, never corruption. Source-entity deletion is deliberately
// not propagated: dependents keep their last denormalized values.
package denorm

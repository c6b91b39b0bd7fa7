// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package docstore provides the document-store access boundary consumed by
// the denormalization engine.
//
// The Store interface covers exactly the four operations the engine needs:
// equality-filter queries, cursor-paginated full scans ordered by document
// ID, multi-get by ID, and bounded atomic batch writes. BadgerStore is the
// production implementation backed by BadgerDB; MemStore is an in-memory
// fake with identical semantics for tests.
//
// Batch writes are chunked: each chunk of at most MaxBatchOps updates
// commits as one atomic transaction, and chunks are independent of each
// other. Callers tolerate partial completion across chunks and rely on
// idempotent recomputation to converge.
package docstore

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

/*
Package services provides suture.Service wrappers for application
components.

Each wrapper adapts a component's native lifecycle (Start/Stop, Run,
ListenAndServe) to suture's context-aware Serve pattern and identifies
itself via fmt.Stringer for supervisor logs.
*/
package services

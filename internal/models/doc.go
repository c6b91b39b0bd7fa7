// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

/*
Package models defines the data structures shared across the denormalization
engine.

Key components:

  - Source records: UserProfile and Medication, the entities whose writes
    drive denormalization
  - Dependent records: Share, ShareInvite, and MedicationReminder, which
    carry denormalized owner/caregiver/medication fields
  - ChangeEvent: the at-least-once envelope delivered for every source write
  - BackfillState: persisted, versioned reconciliation progress
  - APIResponse: the ops API envelope

Denormalized fields are pointers so that "absent" survives a JSON round
trip; collections are addressed by the Collection* constants.
*/
package models

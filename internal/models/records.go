// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package models defines the domain records shared across the denormalization
// engine: source entities (user profiles, medications), dependent records
// (shares, share invites, medication reminders), the change-event envelope,
// and the persisted backfill state.
package models

import "time"

// Collection names used throughout the engine. These are the stable
// identifiers the document store keys its data under.
const (
	CollectionUsers        = "users"
	CollectionMedications  = "medications"
	CollectionShares       = "shares"
	CollectionShareInvites = "shareInvites"
	CollectionReminders    = "reminders"
)

// UserProfile is a source entity owning the canonical identity fields that
// dependent records denormalize (display name, email).
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Medication is a source entity owning the canonical medication fields
// denormalized onto reminders.
type Medication struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Dose   string `json:"dose,omitempty"`
}

// Share is a dependent record: a caregiver's view onto an owner's account.
// OwnerName, OwnerEmail, and CaregiverEmail are denormalized copies kept in
// sync with the referenced user profiles.
type Share struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	CaregiverUserID string     `json:"caregiverUserId,omitempty"`
	OwnerName       *string    `json:"ownerName"`
	OwnerEmail      *string    `json:"ownerEmail"`
	CaregiverEmail  *string    `json:"caregiverEmail"`
	Status          string     `json:"status,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// ShareInvite is a dependent record for a pending share: the caregiver has
// not accepted yet, so it carries the invited email directly rather than a
// caregiver user reference. OwnerName and OwnerEmail are denormalized from
// the owner's profile; CaregiverEmail is normalized in place.
type ShareInvite struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	OwnerName      *string    `json:"ownerName"`
	OwnerEmail     *string    `json:"ownerEmail"`
	CaregiverEmail *string    `json:"caregiverEmail"`
	Status         string     `json:"status,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

// MedicationReminder is a dependent record carrying denormalized medication
// fields so reminder lists render without a per-item medication lookup.
// ScheduledAt is a legacy field retained from early records that predate
// CreatedAt; backfill derives a missing CreatedAt from it.
type MedicationReminder struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	MedicationID   string     `json:"medicationId"`
	MedicationName *string    `json:"medicationName"`
	MedicationDose *string    `json:"medicationDose"`
	TimeOfDay      string     `json:"timeOfDay,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
}

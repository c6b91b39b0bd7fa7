// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package denorm

import (
	"strings"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// Change resolvers are pure and deterministic: given before/after snapshots
// of a source entity they compute the desired denormalized field set, or nil
// when nothing relevant changed. They never see the dependent records.
//
// A returned value is always the full desired set, never a partial diff -
// callers replace the dependent's fields with the fresh resolved values.

// OwnerFields is the desired denormalized owner identity on shares and
// share invites. Nil members mean the field is absent (stored as null).
type OwnerFields struct {
	Name  *string
	Email *string
}

// CaregiverFields is the desired denormalized caregiver identity on shares.
type CaregiverFields struct {
	Email *string
}

// MedicationFields is the desired denormalized medication copy on reminders.
type MedicationFields struct {
	Name *string
	Dose *string
}

// NormalizeEmail trims and lowercases an email address, returning nil for
// an effectively empty value. Emails are always normalized this way before
// storage or comparison.
func NormalizeEmail(raw string) *string {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" {
		return nil
	}
	return &e
}

// NormalizeName trims a name, treating empty as absent.
func NormalizeName(raw string) *string {
	n := strings.TrimSpace(raw)
	if n == "" {
		return nil
	}
	return &n
}

// DisplayName derives the desired display name for a user: the explicit
// display name, else first and last name joined, else the local part of the
// email, else absent.
func DisplayName(u *models.UserProfile) *string {
	if u == nil {
		return nil
	}
	if n := NormalizeName(u.DisplayName); n != nil {
		return n
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return &full
	}
	if email := NormalizeEmail(u.Email); email != nil {
		if at := strings.Index(*email, "@"); at > 0 {
			local := (*email)[:at]
			return &local
		}
		return email
	}
	return nil
}

// ownerFieldsOf derives the full desired owner field set from one snapshot.
func ownerFieldsOf(u *models.UserProfile) OwnerFields {
	if u == nil {
		return OwnerFields{}
	}
	return OwnerFields{
		Name:  DisplayName(u),
		Email: NormalizeEmail(u.Email),
	}
}

func caregiverFieldsOf(u *models.UserProfile) CaregiverFields {
	if u == nil {
		return CaregiverFields{}
	}
	return CaregiverFields{Email: NormalizeEmail(u.Email)}
}

func medicationFieldsOf(m *models.Medication) MedicationFields {
	if m == nil {
		return MedicationFields{}
	}
	return MedicationFields{
		Name: NormalizeName(m.Name),
		Dose: NormalizeName(m.Dose),
	}
}

// ResolveOwnerFields compares the owner fields derived from the before and
// after snapshots. It returns nil when the derived values are identical,
// otherwise the full after-derived field set.
func ResolveOwnerFields(before, after *models.UserProfile) *OwnerFields {
	b, a := ownerFieldsOf(before), ownerFieldsOf(after)
	if strPtrEqual(b.Name, a.Name) && strPtrEqual(b.Email, a.Email) {
		return nil
	}
	return &a
}

// ResolveCaregiverEmail compares the caregiver email derived from the
// before and after snapshots, returning nil when unchanged.
func ResolveCaregiverEmail(before, after *models.UserProfile) *CaregiverFields {
	b, a := caregiverFieldsOf(before), caregiverFieldsOf(after)
	if strPtrEqual(b.Email, a.Email) {
		return nil
	}
	return &a
}

// ResolveMedicationFields compares the medication fields derived from the
// before and after snapshots, returning nil when unchanged.
func ResolveMedicationFields(before, after *models.Medication) *MedicationFields {
	b, a := medicationFieldsOf(before), medicationFieldsOf(after)
	if strPtrEqual(b.Name, a.Name) && strPtrEqual(b.Dose, a.Dose) {
		return nil
	}
	return &a
}

// strPtrEqual compares two optional strings, nil meaning absent.
func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// strPtrValue converts an optional string to the value stored in a field
// diff: the string itself, or nil for JSON null.
func strPtrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

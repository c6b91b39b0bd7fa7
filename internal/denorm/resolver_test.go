// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package denorm

import (
	"testing"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

func strPtr(s string) *string { return &s }

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *string
	}{
		{"lowercases", "Alice@Example.COM", strPtr("alice@example.com")},
		{"trims", "  bob@example.com  ", strPtr("bob@example.com")},
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"already normalized", "carol@example.com", strPtr("carol@example.com")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEmail(tt.in)
			if !strPtrEqual(got, tt.want) {
				t.Errorf("NormalizeEmail(%q) = %v, want %v", tt.in, ptrStr(got), ptrStr(tt.want))
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *models.UserProfile
		want *string
	}{
		{
			"explicit display name wins",
			&models.UserProfile{DisplayName: "Dr. Alice", FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"},
			strPtr("Dr. Alice"),
		},
		{
			"display name trimmed",
			&models.UserProfile{DisplayName: "  Alice  "},
			strPtr("Alice"),
		},
		{
			"first and last joined",
			&models.UserProfile{FirstName: "Alice", LastName: "Smith"},
			strPtr("Alice Smith"),
		},
		{
			"first name only",
			&models.UserProfile{FirstName: "Alice"},
			strPtr("Alice"),
		},
		{
			"last name only",
			&models.UserProfile{LastName: "Smith"},
			strPtr("Smith"),
		},
		{
			"email local part fallback",
			&models.UserProfile{Email: "Alice.Smith@Example.com"},
			strPtr("alice.smith"),
		},
		{
			"nothing available",
			&models.UserProfile{},
			nil,
		},
		{
			"nil user",
			nil,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DisplayName(tt.user)
			if !strPtrEqual(got, tt.want) {
				t.Errorf("DisplayName() = %v, want %v", ptrStr(got), ptrStr(tt.want))
			}
		})
	}
}

func TestResolveOwnerFields(t *testing.T) {
	base := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}

	t.Run("no derived change returns nil", func(t *testing.T) {
		after := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
		if got := ResolveOwnerFields(base, after); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("irrelevant field change returns nil", func(t *testing.T) {
		// FirstName changes but the explicit display name masks it.
		after := &models.UserProfile{ID: "u1", DisplayName: "Alice", FirstName: "Alicia", Email: "alice@example.com"}
		if got := ResolveOwnerFields(base, after); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("name change returns full field set", func(t *testing.T) {
		after := &models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice@example.com"}
		got := ResolveOwnerFields(base, after)
		if got == nil {
			t.Fatal("expected resolved fields, got nil")
		}
		if !strPtrEqual(got.Name, strPtr("Alice B.")) {
			t.Errorf("Name = %v, want Alice B.", ptrStr(got.Name))
		}
		// The unchanged email is still present: full set, not a diff.
		if !strPtrEqual(got.Email, strPtr("alice@example.com")) {
			t.Errorf("Email = %v, want alice@example.com", ptrStr(got.Email))
		}
	})

	t.Run("creation with nil before", func(t *testing.T) {
		got := ResolveOwnerFields(nil, base)
		if got == nil {
			t.Fatal("expected resolved fields for creation")
		}
		if !strPtrEqual(got.Name, strPtr("Alice")) || !strPtrEqual(got.Email, strPtr("alice@example.com")) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("case-only email change is no change", func(t *testing.T) {
		before := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "Alice@Example.COM"}
		after := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
		if got := ResolveOwnerFields(before, after); got != nil {
			t.Errorf("expected nil for case-only email change, got %+v", got)
		}
	})

	t.Run("idempotent on repeated resolution", func(t *testing.T) {
		after := &models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice@example.com"}
		if got := ResolveOwnerFields(after, after); got != nil {
			t.Errorf("resolving identical snapshots must be nil, got %+v", got)
		}
	})
}

func TestResolveCaregiverEmail(t *testing.T) {
	before := &models.UserProfile{ID: "u2", Email: "Carol@Example.com"}

	t.Run("normalized-equal is no change", func(t *testing.T) {
		after := &models.UserProfile{ID: "u2", Email: "carol@example.com"}
		if got := ResolveCaregiverEmail(before, after); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("real change resolves", func(t *testing.T) {
		after := &models.UserProfile{ID: "u2", Email: "carol.new@example.com"}
		got := ResolveCaregiverEmail(before, after)
		if got == nil {
			t.Fatal("expected resolved fields")
		}
		if !strPtrEqual(got.Email, strPtr("carol.new@example.com")) {
			t.Errorf("Email = %v", ptrStr(got.Email))
		}
	})

	t.Run("email removed resolves to absent", func(t *testing.T) {
		after := &models.UserProfile{ID: "u2"}
		got := ResolveCaregiverEmail(before, after)
		if got == nil {
			t.Fatal("expected resolved fields")
		}
		if got.Email != nil {
			t.Errorf("Email = %v, want nil", ptrStr(got.Email))
		}
	})
}

func TestResolveMedicationFields(t *testing.T) {
	before := &models.Medication{ID: "m1", UserID: "u1", Name: "Lisinopril", Dose: "10mg"}

	t.Run("unchanged returns nil", func(t *testing.T) {
		after := &models.Medication{ID: "m1", UserID: "u1", Name: "Lisinopril", Dose: "10mg"}
		if got := ResolveMedicationFields(before, after); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("dose change returns full set", func(t *testing.T) {
		after := &models.Medication{ID: "m1", UserID: "u1", Name: "Lisinopril", Dose: "20mg"}
		got := ResolveMedicationFields(before, after)
		if got == nil {
			t.Fatal("expected resolved fields")
		}
		if !strPtrEqual(got.Name, strPtr("Lisinopril")) || !strPtrEqual(got.Dose, strPtr("20mg")) {
			t.Errorf("got Name=%v Dose=%v", ptrStr(got.Name), ptrStr(got.Dose))
		}
	})

	t.Run("whitespace-only change is no change", func(t *testing.T) {
		after := &models.Medication{ID: "m1", UserID: "u1", Name: "  Lisinopril  ", Dose: "10mg"}
		if got := ResolveMedicationFields(before, after); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})
}

// ptrStr renders an optional string for failure messages.
func ptrStr(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

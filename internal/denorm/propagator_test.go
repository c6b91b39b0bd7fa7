// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package denorm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/docstore"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestPropagator(t *testing.T, store docstore.Store) *Propagator {
	t.Helper()
	p, err := NewPropagator(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPropagator: %v", err)
	}
	return p
}

func TestApplyUserChangeUpdatesOwnedDependents(t *testing.T) {
	store := docstore.NewMemStore()
	mustPut(t, store, models.CollectionShares, "s1", models.Share{
		ID: "s1", OwnerID: "u1", OwnerName: strPtr("Alice"), OwnerEmail: strPtr("alice@example.com"),
	})
	mustPut(t, store, models.CollectionShares, "s2", models.Share{
		ID: "s2", OwnerID: "u2", OwnerName: strPtr("Bob"), OwnerEmail: strPtr("bob@example.com"),
	})
	mustPut(t, store, models.CollectionShareInvites, "i1", models.ShareInvite{
		ID: "i1", OwnerID: "u1", OwnerName: strPtr("Alice"), OwnerEmail: strPtr("alice@example.com"),
	})

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
	after := &models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice@example.com"}

	result, err := p.ApplyUserChange(context.Background(), before, after, testNow)
	if err != nil {
		t.Fatalf("ApplyUserChange: %v", err)
	}
	if result.Updated[models.CollectionShares] != 1 || result.Updated[models.CollectionShareInvites] != 1 {
		t.Errorf("Updated = %v, want one share and one invite", result.Updated)
	}

	var s1 models.Share
	if _, err := store.Get(models.CollectionShares, "s1", &s1); err != nil {
		t.Fatal(err)
	}
	if !strPtrEqual(s1.OwnerName, strPtr("Alice B.")) {
		t.Errorf("s1.OwnerName = %v, want Alice B.", ptrStr(s1.OwnerName))
	}

	// The other owner's share is untouched.
	var s2 models.Share
	if _, err := store.Get(models.CollectionShares, "s2", &s2); err != nil {
		t.Fatal(err)
	}
	if !strPtrEqual(s2.OwnerName, strPtr("Bob")) {
		t.Errorf("s2.OwnerName = %v, want Bob", ptrStr(s2.OwnerName))
	}
}

func TestApplyUserChangeSkipsAlreadyConsistent(t *testing.T) {
	store := docstore.NewMemStore()
	// Already carries the post-change values (e.g. corrected by backfill).
	mustPut(t, store, models.CollectionShares, "s1", models.Share{
		ID: "s1", OwnerID: "u1", OwnerName: strPtr("Alice B."), OwnerEmail: strPtr("alice@example.com"),
	})

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
	after := &models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice@example.com"}

	result, err := p.ApplyUserChange(context.Background(), before, after, testNow)
	if err != nil {
		t.Fatalf("ApplyUserChange: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("Total() = %d, want 0 (stored values already match)", result.Total())
	}
	if len(store.CommitSizes) != 0 {
		t.Errorf("expected no commit, got %v", store.CommitSizes)
	}
}

func TestApplyUserChangeRedeliveryIsIdempotent(t *testing.T) {
	store := docstore.NewMemStore()
	mustPut(t, store, models.CollectionShares, "s1", models.Share{
		ID: "s1", OwnerID: "u1", OwnerName: strPtr("Alice"), OwnerEmail: strPtr("alice@example.com"),
	})

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
	after := &models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice@example.com"}

	if _, err := p.ApplyUserChange(context.Background(), before, after, testNow); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := p.ApplyUserChange(context.Background(), before, after, testNow)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("redelivery Total() = %d, want 0", result.Total())
	}
}

func TestApplyUserChangeCaregiverEmail(t *testing.T) {
	store := docstore.NewMemStore()
	mustPut(t, store, models.CollectionShares, "s1", models.Share{
		ID: "s1", OwnerID: "u9", CaregiverUserID: "u2", CaregiverEmail: strPtr("carol@example.com"),
	})

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u2", Email: "carol@example.com"}
	after := &models.UserProfile{ID: "u2", Email: "Carol.New@Example.com"}

	result, err := p.ApplyUserChange(context.Background(), before, after, testNow)
	if err != nil {
		t.Fatalf("ApplyUserChange: %v", err)
	}
	if result.Updated[models.CollectionShares] != 1 {
		t.Fatalf("Updated = %v, want 1 share", result.Updated)
	}

	var s1 models.Share
	if _, err := store.Get(models.CollectionShares, "s1", &s1); err != nil {
		t.Fatal(err)
	}
	if !strPtrEqual(s1.CaregiverEmail, strPtr("carol.new@example.com")) {
		t.Errorf("CaregiverEmail = %v, want normalized carol.new@example.com", ptrStr(s1.CaregiverEmail))
	}
}

func TestApplyUserChangeOwnerAndCaregiverSameShareCountsOnce(t *testing.T) {
	store := docstore.NewMemStore()
	// The same user is both owner and caregiver on s1.
	mustPut(t, store, models.CollectionShares, "s1", models.Share{
		ID: "s1", OwnerID: "u1", CaregiverUserID: "u1",
		OwnerName: strPtr("Alice"), OwnerEmail: strPtr("alice@example.com"),
		CaregiverEmail: strPtr("alice@example.com"),
	})

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
	after := &models.UserProfile{ID: "u1", DisplayName: "Alice B.", Email: "alice.b@example.com"}

	result, err := p.ApplyUserChange(context.Background(), before, after, testNow)
	if err != nil {
		t.Fatalf("ApplyUserChange: %v", err)
	}
	// Both the owner fields and the caregiver email change, but only one
	// document was touched.
	if result.Updated[models.CollectionShares] != 1 {
		t.Errorf("Updated[shares] = %d, want 1 document", result.Updated[models.CollectionShares])
	}

	var s1 models.Share
	mustGet(t, store, models.CollectionShares, "s1", &s1)
	if !strPtrEqual(s1.OwnerName, strPtr("Alice B.")) {
		t.Errorf("OwnerName = %v, want Alice B.", ptrStr(s1.OwnerName))
	}
	if !strPtrEqual(s1.OwnerEmail, strPtr("alice.b@example.com")) {
		t.Errorf("OwnerEmail = %v, want alice.b@example.com", ptrStr(s1.OwnerEmail))
	}
	if !strPtrEqual(s1.CaregiverEmail, strPtr("alice.b@example.com")) {
		t.Errorf("CaregiverEmail = %v, want alice.b@example.com", ptrStr(s1.CaregiverEmail))
	}
}

func TestApplyUserChangeDeletedEntityIsNoOp(t *testing.T) {
	store := docstore.NewMemStore()
	mustPut(t, store, models.CollectionShares, "s1", models.Share{
		ID: "s1", OwnerID: "u1", OwnerName: strPtr("Alice"),
	})

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u1", DisplayName: "Alice"}

	result, err := p.ApplyUserChange(context.Background(), before, nil, testNow)
	if err != nil {
		t.Fatalf("ApplyUserChange: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("Total() = %d, want 0 for deletion", result.Total())
	}

	// Dependents keep their last denormalized values.
	var s1 models.Share
	if _, err := store.Get(models.CollectionShares, "s1", &s1); err != nil {
		t.Fatal(err)
	}
	if !strPtrEqual(s1.OwnerName, strPtr("Alice")) {
		t.Errorf("OwnerName = %v, want retained Alice", ptrStr(s1.OwnerName))
	}
}

func TestApplyUserChangeQueryErrorPropagates(t *testing.T) {
	store := docstore.NewMemStore()
	injected := errors.New("store unavailable")
	store.QueryErr = injected

	p := newTestPropagator(t, store)
	before := &models.UserProfile{ID: "u1", DisplayName: "Alice"}
	after := &models.UserProfile{ID: "u1", DisplayName: "Alice B."}

	if _, err := p.ApplyUserChange(context.Background(), before, after, testNow); !errors.Is(err, injected) {
		t.Errorf("err = %v, want wrapped %v", err, injected)
	}
}

func TestApplyMedicationChangeFiltersByOwnerAndMedication(t *testing.T) {
	store := docstore.NewMemStore()
	mustPut(t, store, models.CollectionReminders, "r1", models.MedicationReminder{
		ID: "r1", UserID: "u1", MedicationID: "m1", MedicationName: strPtr("Lisinopril"), MedicationDose: strPtr("10mg"),
	})
	// Same medication ID under a different user must not match.
	mustPut(t, store, models.CollectionReminders, "r2", models.MedicationReminder{
		ID: "r2", UserID: "u2", MedicationID: "m1", MedicationName: strPtr("Lisinopril"), MedicationDose: strPtr("10mg"),
	})
	// Same user, different medication.
	mustPut(t, store, models.CollectionReminders, "r3", models.MedicationReminder{
		ID: "r3", UserID: "u1", MedicationID: "m2", MedicationName: strPtr("Metformin"), MedicationDose: strPtr("500mg"),
	})

	p := newTestPropagator(t, store)
	before := &models.Medication{ID: "m1", UserID: "u1", Name: "Lisinopril", Dose: "10mg"}
	after := &models.Medication{ID: "m1", UserID: "u1", Name: "Lisinopril", Dose: "20mg"}

	result, err := p.ApplyMedicationChange(context.Background(), before, after, testNow)
	if err != nil {
		t.Fatalf("ApplyMedicationChange: %v", err)
	}
	if result.Updated[models.CollectionReminders] != 1 {
		t.Fatalf("Updated = %v, want exactly 1 reminder", result.Updated)
	}

	var r1, r2, r3 models.MedicationReminder
	mustGet(t, store, models.CollectionReminders, "r1", &r1)
	mustGet(t, store, models.CollectionReminders, "r2", &r2)
	mustGet(t, store, models.CollectionReminders, "r3", &r3)
	if !strPtrEqual(r1.MedicationDose, strPtr("20mg")) {
		t.Errorf("r1.MedicationDose = %v, want 20mg", ptrStr(r1.MedicationDose))
	}
	if !strPtrEqual(r2.MedicationDose, strPtr("10mg")) {
		t.Errorf("r2.MedicationDose = %v, want untouched 10mg", ptrStr(r2.MedicationDose))
	}
	if !strPtrEqual(r3.MedicationDose, strPtr("500mg")) {
		t.Errorf("r3.MedicationDose = %v, want untouched 500mg", ptrStr(r3.MedicationDose))
	}
}

func TestApplyMedicationChangeNoDerivedChange(t *testing.T) {
	store := docstore.NewMemStore()
	mustPut(t, store, models.CollectionReminders, "r1", models.MedicationReminder{
		ID: "r1", UserID: "u1", MedicationID: "m1", MedicationName: strPtr("stale"), MedicationDose: strPtr("stale"),
	})

	p := newTestPropagator(t, store)
	same := &models.Medication{ID: "m1", UserID: "u1", Name: "Lisinopril", Dose: "10mg"}

	// Resolver reports no change, so even drifted dependents are not touched
	// on this path; the backfill owns that correction.
	result, err := p.ApplyMedicationChange(context.Background(), same, same, testNow)
	if err != nil {
		t.Fatalf("ApplyMedicationChange: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("Total() = %d, want 0", result.Total())
	}
}

func mustPut(t *testing.T, store *docstore.MemStore, collection, id string, v any) {
	t.Helper()
	if err := store.Put(collection, id, v); err != nil {
		t.Fatalf("put %s/%s: %v", collection, id, err)
	}
}

func mustGet(t *testing.T, store *docstore.MemStore, collection, id string, v any) {
	t.Helper()
	ok, err := store.Get(collection, id, v)
	if err != nil {
		t.Fatalf("get %s/%s: %v", collection, id, err)
	}
	if !ok {
		t.Fatalf("get %s/%s: not found", collection, id)
	}
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package denorm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/docstore"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// Propagator pushes one source-entity change out to every affected
// dependent record.
//
// The timestamp for queued updates is always caller-supplied (typically the
// event's occurred-at time); the propagator never reads the wall clock, so
// its behavior is fully determined by its inputs.
//
// I/O failures during query or commit propagate to the caller unmodified;
// there is no internal retry. The hosting trigger layer relies on
// at-least-once event redelivery for recovery.
type Propagator struct {
	store  docstore.Store
	logger zerolog.Logger
}

// NewPropagator creates a propagator over the given store.
func NewPropagator(store docstore.Store, logger zerolog.Logger) (*Propagator, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	return &Propagator{
		store:  store,
		logger: logger.With().Str("component", "propagator").Logger(),
	}, nil
}

// PropagationResult reports per-collection counts of documents updated by
// one propagation pass.
type PropagationResult struct {
	Updated map[string]int
}

func newPropagationResult() *PropagationResult {
	return &PropagationResult{Updated: make(map[string]int)}
}

// Total returns the number of documents updated across all collections.
func (r *PropagationResult) Total() int {
	n := 0
	for _, c := range r.Updated {
		n += c
	}
	return n
}

// ApplyUserChange propagates a user-profile change to shares and share
// invites the user owns, and to shares where the user is the caregiver.
//
// A nil after snapshot (entity removed) is a no-op: dependents keep their
// last denormalized values. When the resolvers report no derived change,
// the method returns without issuing any query.
func (p *Propagator) ApplyUserChange(ctx context.Context, before, after *models.UserProfile, now time.Time) (*PropagationResult, error) {
	result := newPropagationResult()
	if after == nil {
		return result, nil
	}

	owner := ResolveOwnerFields(before, after)
	caregiver := ResolveCaregiverEmail(before, after)
	if owner == nil && caregiver == nil {
		return result, nil
	}

	var pending []docstore.PendingUpdate

	// Updated counts documents, not field groups: a share touched by both
	// the owner and caregiver paths (same user in both roles) counts once.
	touched := make(map[docstore.Ref]struct{})

	if owner != nil {
		byOwner := docstore.Filter{Field: "ownerId", Value: after.ID}

		shares, err := p.store.Query(ctx, models.CollectionShares, byOwner)
		if err != nil {
			return nil, fmt.Errorf("query shares by owner: %w", err)
		}
		for _, doc := range shares {
			var share models.Share
			if err := doc.Decode(&share); err != nil {
				return nil, err
			}
			// Compare against the stored values, not the resolver's diff: a
			// dependent already corrected by a backfill pass needs no write.
			if strPtrEqual(share.OwnerName, owner.Name) && strPtrEqual(share.OwnerEmail, owner.Email) {
				continue
			}
			ref := docstore.Ref{Collection: models.CollectionShares, ID: doc.ID}
			pending = append(pending, docstore.PendingUpdate{
				Ref: ref,
				Fields: map[string]any{
					"ownerName":  strPtrValue(owner.Name),
					"ownerEmail": strPtrValue(owner.Email),
				},
				UpdatedAt: now,
			})
			touched[ref] = struct{}{}
			result.Updated[models.CollectionShares]++
		}

		invites, err := p.store.Query(ctx, models.CollectionShareInvites, byOwner)
		if err != nil {
			return nil, fmt.Errorf("query share invites by owner: %w", err)
		}
		for _, doc := range invites {
			var invite models.ShareInvite
			if err := doc.Decode(&invite); err != nil {
				return nil, err
			}
			if strPtrEqual(invite.OwnerName, owner.Name) && strPtrEqual(invite.OwnerEmail, owner.Email) {
				continue
			}
			pending = append(pending, docstore.PendingUpdate{
				Ref: docstore.Ref{Collection: models.CollectionShareInvites, ID: doc.ID},
				Fields: map[string]any{
					"ownerName":  strPtrValue(owner.Name),
					"ownerEmail": strPtrValue(owner.Email),
				},
				UpdatedAt: now,
			})
			result.Updated[models.CollectionShareInvites]++
		}
	}

	if caregiver != nil {
		shares, err := p.store.Query(ctx, models.CollectionShares,
			docstore.Filter{Field: "caregiverUserId", Value: after.ID})
		if err != nil {
			return nil, fmt.Errorf("query shares by caregiver: %w", err)
		}
		for _, doc := range shares {
			var share models.Share
			if err := doc.Decode(&share); err != nil {
				return nil, err
			}
			if strPtrEqual(share.CaregiverEmail, caregiver.Email) {
				continue
			}
			ref := docstore.Ref{Collection: models.CollectionShares, ID: doc.ID}
			pending = append(pending, docstore.PendingUpdate{
				Ref:       ref,
				Fields:    map[string]any{"caregiverEmail": strPtrValue(caregiver.Email)},
				UpdatedAt: now,
			})
			if _, ok := touched[ref]; !ok {
				result.Updated[models.CollectionShares]++
			}
		}
	}

	if err := p.flush(ctx, pending); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("user_id", after.ID).
		Int("updated", result.Total()).
		Msg("Propagated user change")
	return result, nil
}

// ApplyMedicationChange propagates a medication change to the reminders
// that reference it, filtered by owner AND medication ID.
func (p *Propagator) ApplyMedicationChange(ctx context.Context, before, after *models.Medication, now time.Time) (*PropagationResult, error) {
	result := newPropagationResult()
	if after == nil {
		return result, nil
	}

	med := ResolveMedicationFields(before, after)
	if med == nil {
		return result, nil
	}

	reminders, err := p.store.Query(ctx, models.CollectionReminders,
		docstore.Filter{Field: "userId", Value: after.UserID},
		docstore.Filter{Field: "medicationId", Value: after.ID})
	if err != nil {
		return nil, fmt.Errorf("query reminders by medication: %w", err)
	}

	var pending []docstore.PendingUpdate
	for _, doc := range reminders {
		var reminder models.MedicationReminder
		if err := doc.Decode(&reminder); err != nil {
			return nil, err
		}
		if strPtrEqual(reminder.MedicationName, med.Name) && strPtrEqual(reminder.MedicationDose, med.Dose) {
			continue
		}
		pending = append(pending, docstore.PendingUpdate{
			Ref: docstore.Ref{Collection: models.CollectionReminders, ID: doc.ID},
			Fields: map[string]any{
				"medicationName": strPtrValue(med.Name),
				"medicationDose": strPtrValue(med.Dose),
			},
			UpdatedAt: now,
		})
		result.Updated[models.CollectionReminders]++
	}

	if err := p.flush(ctx, pending); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("medication_id", after.ID).
		Int("updated", result.Total()).
		Msg("Propagated medication change")
	return result, nil
}

func (p *Propagator) flush(ctx context.Context, pending []docstore.PendingUpdate) error {
	if len(pending) == 0 {
		return nil
	}
	if err := p.store.Apply(ctx, pending); err != nil {
		return fmt.Errorf("flush %d pending updates: %w", len(pending), err)
	}
	return nil
}

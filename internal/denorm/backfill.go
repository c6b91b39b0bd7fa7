// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package denorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/docstore"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/metrics"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/models"
)

// JobName identifies the denormalization backfill job in the state store.
const JobName = "denormalization"

// Page size bounds for one backfill invocation. The page size is the
// mechanism that keeps a single invocation's unit of work bounded.
const (
	DefaultPageSize = 250
	MinPageSize     = 1
	MaxPageSize     = 500
)

// saveAttempts bounds the reload-and-merge loop when a concurrent
// invocation raced this one on the persisted state.
const saveAttempts = 3

// BackfillOptions configures one backfill invocation.
type BackfillOptions struct {
	// PageSize overrides the persisted page size, clamped to
	// [MinPageSize, MaxPageSize]. Zero keeps the persisted value.
	PageSize int

	// DryRun tallies would-be updates without issuing any write and
	// without advancing persisted progress.
	DryRun bool
}

// BackfillResult reports one invocation's outcome.
type BackfillResult struct {
	Processed map[string]int    `json:"processed"`
	Updated   map[string]int    `json:"updated"`
	Cursors   map[string]string `json:"cursors"`
	HasMore   bool              `json:"hasMore"`
	DryRun    bool              `json:"dryRun"`
	PageSize  int               `json:"pageSize"`
}

// Engine performs resumable, paginated reconciliation of every dependent
// collection's denormalized fields against current source data.
//
// Each invocation processes at most one page per collection; independent
// collections are reconciled concurrently, while all I/O within one page is
// sequential. Repeated invocation with no intervening source mutations
// converges to zero further updates.
type Engine struct {
	store  docstore.Store
	states docstore.StateStore
	logger zerolog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewEngine creates a backfill engine over the given store and state store.
func NewEngine(store docstore.Store, states docstore.StateStore, logger zerolog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if states == nil {
		return nil, fmt.Errorf("state store required")
	}
	return &Engine{
		store:  store,
		states: states,
		logger: logger.With().Str("component", "backfill").Logger(),
		now:    time.Now,
	}, nil
}

// collectionOutcome is one collection's result within an invocation.
type collectionOutcome struct {
	processed int
	updated   int
	cursor    string // last scanned document ID; "" keeps the prior cursor
	hasMore   bool
}

// reconcileFunc scans one page of a collection starting after cursor and
// corrects drift, honoring dryRun.
type reconcileFunc func(ctx context.Context, cursor string, pageSize int, dryRun bool) (collectionOutcome, error)

// RunBackfill reconciles one page of every tracked collection, persists the
// merged progress, and reports per-collection counts. Safe to invoke from a
// scheduler or an operator command; idempotent.
func (e *Engine) RunBackfill(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	start := time.Now()
	defer metrics.ObserveBackfillDuration(start)

	state, err := e.states.Load(ctx, JobName)
	if err != nil {
		return nil, fmt.Errorf("load backfill state: %w", err)
	}
	if state == nil {
		state = models.NewBackfillState()
	}

	pageSize := clampPageSize(opts.PageSize, state.PageSize)

	reconcilers := map[string]reconcileFunc{
		models.CollectionShares:       e.reconcileShares,
		models.CollectionShareInvites: e.reconcileShareInvites,
		models.CollectionReminders:    e.reconcileReminders,
	}

	// Independent collections run concurrently; results merge under a lock.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[string]collectionOutcome, len(reconcilers))
		errs     []error
	)
	for name, reconcile := range reconcilers {
		wg.Add(1)
		go func(name string, reconcile reconcileFunc) {
			defer wg.Done()
			outcome, err := reconcile(ctx, state.Cursors[name], pageSize, opts.DryRun)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("reconcile %s: %w", name, err))
				return
			}
			outcomes[name] = outcome
		}(name, reconcile)
	}
	wg.Wait()

	result := &BackfillResult{
		Processed: make(map[string]int, len(outcomes)),
		Updated:   make(map[string]int, len(outcomes)),
		Cursors:   make(map[string]string),
		DryRun:    opts.DryRun,
		PageSize:  pageSize,
	}
	for name, o := range outcomes {
		result.Processed[name] = o.processed
		result.Updated[name] = o.updated
		if o.hasMore {
			result.HasMore = true
			result.Cursors[name] = o.cursor
		}
		if !opts.DryRun {
			metrics.BackfillDocumentsProcessed.WithLabelValues(name).Add(float64(o.processed))
			metrics.BackfillDocumentsUpdated.WithLabelValues(name).Add(float64(o.updated))
		}
	}

	// Dry runs never advance persisted progress; the persisted state stays
	// exactly as loaded.
	if !opts.DryRun {
		if err := e.persistProgress(ctx, state, outcomes, pageSize, len(errs) == 0); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		metrics.BackfillRunsTotal.WithLabelValues("error").Inc()
		return result, errors.Join(errs...)
	}

	status := "in_progress"
	switch {
	case opts.DryRun:
		status = "dry_run"
	case !result.HasMore:
		status = "completed"
	}
	metrics.BackfillRunsTotal.WithLabelValues(status).Inc()

	e.logger.Info().
		Bool("dry_run", opts.DryRun).
		Bool("has_more", result.HasMore).
		Int("page_size", pageSize).
		Interface("processed", result.Processed).
		Interface("updated", result.Updated).
		Msg("Backfill pass finished")
	return result, nil
}

// persistProgress merges this invocation's outcomes into the persisted
// state so unrelated collections' progress survives partial runs. On a
// version conflict the state is reloaded and the merge reapplied, so two
// racing invocations serialize instead of clobbering each other.
func (e *Engine) persistProgress(ctx context.Context, loaded *models.BackfillState, outcomes map[string]collectionOutcome, pageSize int, allSucceeded bool) error {
	state := loaded
	for attempt := 0; ; attempt++ {
		next := state.Clone()
		next.PageSize = pageSize
		next.LastProcessedAt = e.now().UTC()

		anyHasMore := false
		for name, o := range outcomes {
			if o.cursor != "" {
				next.Cursors[name] = o.cursor
			}
			next.LastRun[name] = models.CollectionRunStats{Processed: o.processed, Updated: o.updated}
			if o.hasMore {
				anyHasMore = true
			}
		}

		// The completion marker is set only when every tracked collection's
		// most recent page reported no further pages - and only on a run
		// where every reconciler actually reported.
		switch {
		case anyHasMore || !allSucceeded:
			next.CompletedAt = nil
		case next.CompletedAt == nil:
			ts := e.now().UTC()
			next.CompletedAt = &ts
		}

		err := e.states.Save(ctx, JobName, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrStateConflict) || attempt+1 >= saveAttempts {
			return fmt.Errorf("persist backfill state: %w", err)
		}

		reloaded, loadErr := e.states.Load(ctx, JobName)
		if loadErr != nil {
			return fmt.Errorf("reload backfill state after conflict: %w", loadErr)
		}
		if reloaded == nil {
			reloaded = models.NewBackfillState()
		}
		state = reloaded
	}
}

// ClearState removes the persisted backfill state, returning every
// collection cursor to not-started. Required after a resolver-logic change
// forces a full re-sweep; there is no automatic reset.
func (e *Engine) ClearState(ctx context.Context) error {
	if err := e.states.Delete(ctx, JobName); err != nil {
		return fmt.Errorf("clear backfill state: %w", err)
	}
	e.logger.Info().Msg("Backfill state cleared")
	return nil
}

// State returns the persisted backfill state, or an empty state when the
// job has never run.
func (e *Engine) State(ctx context.Context) (*models.BackfillState, error) {
	state, err := e.states.Load(ctx, JobName)
	if err != nil {
		return nil, fmt.Errorf("load backfill state: %w", err)
	}
	if state == nil {
		state = models.NewBackfillState()
	}
	return state, nil
}

func clampPageSize(requested, persisted int) int {
	size := requested
	if size == 0 {
		size = persisted
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size < MinPageSize {
		size = MinPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

// reconcileShares corrects denormalized owner and caregiver fields on one
// page of shares. Desired values are computed directly from the current
// user profiles fetched in a single multi-get, never diffed against a prior
// snapshot. A share whose caregiver is tracked only by email (no caregiver
// user yet) has its stored email re-normalized in place.
func (e *Engine) reconcileShares(ctx context.Context, cursor string, pageSize int, dryRun bool) (collectionOutcome, error) {
	docs, hasMore, err := e.store.List(ctx, models.CollectionShares, cursor, pageSize)
	if err != nil {
		return collectionOutcome{}, err
	}
	if len(docs) == 0 {
		return collectionOutcome{cursor: cursor}, nil
	}

	shares := make([]models.Share, len(docs))
	idSet := make(map[string]struct{})
	for i, doc := range docs {
		if err := doc.Decode(&shares[i]); err != nil {
			return collectionOutcome{}, err
		}
		if shares[i].OwnerID != "" {
			idSet[shares[i].OwnerID] = struct{}{}
		}
		if shares[i].CaregiverUserID != "" {
			idSet[shares[i].CaregiverUserID] = struct{}{}
		}
	}

	users, err := e.fetchUsers(ctx, idSet)
	if err != nil {
		return collectionOutcome{}, err
	}

	var pending []docstore.PendingUpdate
	now := e.now().UTC()
	for i, doc := range docs {
		share := shares[i]
		fields := make(map[string]any)

		if owner, ok := users[share.OwnerID]; ok {
			desired := ownerFieldsOf(owner)
			if !strPtrEqual(share.OwnerName, desired.Name) || !strPtrEqual(share.OwnerEmail, desired.Email) {
				fields["ownerName"] = strPtrValue(desired.Name)
				fields["ownerEmail"] = strPtrValue(desired.Email)
			}
		}

		if share.CaregiverUserID != "" {
			if caregiver, ok := users[share.CaregiverUserID]; ok {
				desired := caregiverFieldsOf(caregiver)
				if !strPtrEqual(share.CaregiverEmail, desired.Email) {
					fields["caregiverEmail"] = strPtrValue(desired.Email)
				}
			}
		} else if share.CaregiverEmail != nil {
			normalized := NormalizeEmail(*share.CaregiverEmail)
			if !strPtrEqual(share.CaregiverEmail, normalized) {
				fields["caregiverEmail"] = strPtrValue(normalized)
			}
		}

		if len(fields) == 0 {
			continue
		}
		pending = append(pending, docstore.PendingUpdate{
			Ref:       docstore.Ref{Collection: models.CollectionShares, ID: doc.ID},
			Fields:    fields,
			UpdatedAt: now,
		})
	}

	if err := e.flush(ctx, pending, dryRun); err != nil {
		return collectionOutcome{}, err
	}
	return collectionOutcome{
		processed: len(docs),
		updated:   len(pending),
		cursor:    docs[len(docs)-1].ID,
		hasMore:   hasMore,
	}, nil
}

// reconcileShareInvites corrects denormalized owner fields on one page of
// share invites and re-normalizes the invited email in place (the invite
// has no caregiver user to look up).
func (e *Engine) reconcileShareInvites(ctx context.Context, cursor string, pageSize int, dryRun bool) (collectionOutcome, error) {
	docs, hasMore, err := e.store.List(ctx, models.CollectionShareInvites, cursor, pageSize)
	if err != nil {
		return collectionOutcome{}, err
	}
	if len(docs) == 0 {
		return collectionOutcome{cursor: cursor}, nil
	}

	invites := make([]models.ShareInvite, len(docs))
	idSet := make(map[string]struct{})
	for i, doc := range docs {
		if err := doc.Decode(&invites[i]); err != nil {
			return collectionOutcome{}, err
		}
		if invites[i].OwnerID != "" {
			idSet[invites[i].OwnerID] = struct{}{}
		}
	}

	users, err := e.fetchUsers(ctx, idSet)
	if err != nil {
		return collectionOutcome{}, err
	}

	var pending []docstore.PendingUpdate
	now := e.now().UTC()
	for i, doc := range docs {
		invite := invites[i]
		fields := make(map[string]any)

		if owner, ok := users[invite.OwnerID]; ok {
			desired := ownerFieldsOf(owner)
			if !strPtrEqual(invite.OwnerName, desired.Name) || !strPtrEqual(invite.OwnerEmail, desired.Email) {
				fields["ownerName"] = strPtrValue(desired.Name)
				fields["ownerEmail"] = strPtrValue(desired.Email)
			}
		}

		if invite.CaregiverEmail != nil {
			normalized := NormalizeEmail(*invite.CaregiverEmail)
			if !strPtrEqual(invite.CaregiverEmail, normalized) {
				fields["caregiverEmail"] = strPtrValue(normalized)
			}
		}

		if len(fields) == 0 {
			continue
		}
		pending = append(pending, docstore.PendingUpdate{
			Ref:       docstore.Ref{Collection: models.CollectionShareInvites, ID: doc.ID},
			Fields:    fields,
			UpdatedAt: now,
		})
	}

	if err := e.flush(ctx, pending, dryRun); err != nil {
		return collectionOutcome{}, err
	}
	return collectionOutcome{
		processed: len(docs),
		updated:   len(pending),
		cursor:    docs[len(docs)-1].ID,
		hasMore:   hasMore,
	}, nil
}

// reconcileReminders corrects denormalized medication fields on one page of
// reminders, and backfills a missing createdAt from the legacy scheduledAt
// field with no external lookup.
func (e *Engine) reconcileReminders(ctx context.Context, cursor string, pageSize int, dryRun bool) (collectionOutcome, error) {
	docs, hasMore, err := e.store.List(ctx, models.CollectionReminders, cursor, pageSize)
	if err != nil {
		return collectionOutcome{}, err
	}
	if len(docs) == 0 {
		return collectionOutcome{cursor: cursor}, nil
	}

	reminders := make([]models.MedicationReminder, len(docs))
	idSet := make(map[string]struct{})
	for i, doc := range docs {
		if err := doc.Decode(&reminders[i]); err != nil {
			return collectionOutcome{}, err
		}
		if reminders[i].MedicationID != "" {
			idSet[reminders[i].MedicationID] = struct{}{}
		}
	}

	medDocs, err := e.store.GetMulti(ctx, models.CollectionMedications, sortedKeys(idSet))
	if err != nil {
		return collectionOutcome{}, fmt.Errorf("multi-get medications: %w", err)
	}
	medications := make(map[string]*models.Medication, len(medDocs))
	for id, doc := range medDocs {
		med := &models.Medication{}
		if err := doc.Decode(med); err != nil {
			return collectionOutcome{}, err
		}
		medications[id] = med
	}

	var pending []docstore.PendingUpdate
	now := e.now().UTC()
	for i, doc := range docs {
		reminder := reminders[i]
		fields := make(map[string]any)

		if med, ok := medications[reminder.MedicationID]; ok {
			desired := medicationFieldsOf(med)
			if !strPtrEqual(reminder.MedicationName, desired.Name) || !strPtrEqual(reminder.MedicationDose, desired.Dose) {
				fields["medicationName"] = strPtrValue(desired.Name)
				fields["medicationDose"] = strPtrValue(desired.Dose)
			}
		}

		if reminder.CreatedAt == nil && reminder.ScheduledAt != nil {
			fields["createdAt"] = reminder.ScheduledAt.UTC().Format(time.RFC3339Nano)
		}

		if len(fields) == 0 {
			continue
		}
		pending = append(pending, docstore.PendingUpdate{
			Ref:       docstore.Ref{Collection: models.CollectionReminders, ID: doc.ID},
			Fields:    fields,
			UpdatedAt: now,
		})
	}

	if err := e.flush(ctx, pending, dryRun); err != nil {
		return collectionOutcome{}, err
	}
	return collectionOutcome{
		processed: len(docs),
		updated:   len(pending),
		cursor:    docs[len(docs)-1].ID,
		hasMore:   hasMore,
	}, nil
}

// fetchUsers multi-gets and decodes the referenced user profiles in one
// round trip, returning a sparse map omitting missing IDs.
func (e *Engine) fetchUsers(ctx context.Context, idSet map[string]struct{}) (map[string]*models.UserProfile, error) {
	docs, err := e.store.GetMulti(ctx, models.CollectionUsers, sortedKeys(idSet))
	if err != nil {
		return nil, fmt.Errorf("multi-get users: %w", err)
	}
	users := make(map[string]*models.UserProfile, len(docs))
	for id, doc := range docs {
		u := &models.UserProfile{}
		if err := doc.Decode(u); err != nil {
			return nil, err
		}
		users[id] = u
	}
	return users, nil
}

func (e *Engine) flush(ctx context.Context, pending []docstore.PendingUpdate, dryRun bool) error {
	if dryRun || len(pending) == 0 {
		return nil
	}
	if err := e.store.Apply(ctx, pending); err != nil {
		return fmt.Errorf("flush %d pending updates: %w", len(pending), err)
	}
	return nil
}

// sortedKeys returns the set's keys in a deterministic order so multi-gets
// and tests are stable.
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

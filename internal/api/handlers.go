// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/denorm"
)

// Handler serves the ops endpoints.
type Handler struct {
	engine             *denorm.Engine
	propagationEnabled func() bool
	logger             zerolog.Logger
}

// NewHandler creates the ops handler. propagationEnabled reports the live
// propagation kill switch for the health payload; nil means always on.
func NewHandler(engine *denorm.Engine, propagationEnabled func() bool, logger zerolog.Logger) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("backfill engine required")
	}
	if propagationEnabled == nil {
		propagationEnabled = func() bool { return true }
	}
	return &Handler{
		engine:             engine,
		propagationEnabled: propagationEnabled,
		logger:             logger.With().Str("component", "ops-api").Logger(),
	}, nil
}

// Health reports liveness and the propagation kill switch position.
//
// Method: GET
// Path: /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":              "ok",
		"propagation_enabled": h.propagationEnabled(),
	})
}

// BackfillTriggerRequest is the body of a manual backfill invocation.
// A zero page size keeps the persisted value.
type BackfillTriggerRequest struct {
	PageSize int  `json:"pageSize" validate:"omitempty,min=1,max=500"`
	DryRun   bool `json:"dryRun"`
}

// BackfillTrigger runs one backfill invocation synchronously and returns
// the per-collection counts. Dry runs report drift without writing.
//
// Method: POST
// Path: /api/v1/backfill
func (h *Handler) BackfillTrigger(w http.ResponseWriter, r *http.Request) {
	var req BackfillTriggerRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body", err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON", err)
			return
		}
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.engine.RunBackfill(r.Context(), denorm.BackfillOptions{
		PageSize: req.PageSize,
		DryRun:   req.DryRun,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "BACKFILL_FAILED", "Backfill invocation failed", err)
		return
	}

	h.logger.Info().
		Bool("dry_run", result.DryRun).
		Bool("has_more", result.HasMore).
		Interface("updated", result.Updated).
		Msg("Manual backfill invocation completed")
	respondData(w, http.StatusOK, result)
}

// BackfillState returns the persisted backfill progress, or an empty state
// when the job has never run.
//
// Method: GET
// Path: /api/v1/backfill/state
func (h *Handler) BackfillState(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.State(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_LOAD_FAILED", "Failed to load backfill state", err)
		return
	}
	respondData(w, http.StatusOK, state)
}

// BackfillStateReset clears persisted backfill progress so the next run
// sweeps every collection from the beginning.
//
// Method: DELETE
// Path: /api/v1/backfill/state
func (h *Handler) BackfillStateReset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearState(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "STATE_RESET_FAILED", "Failed to clear backfill state", err)
		return
	}
	h.logger.Info().Msg("Backfill state reset via API")
	respondData(w, http.StatusOK, map[string]string{"result": "reset"})
}

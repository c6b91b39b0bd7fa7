// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package api provides the ops HTTP surface: health, metrics, and manual
// backfill control. It is an internal operator endpoint, not the
// application API; there is no authentication layer here and the listener
// should bind to a private interface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi router for the ops endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/backfill", func(r chi.Router) {
		r.Post("/", handler.BackfillTrigger)
		r.Get("/state", handler.BackfillState)
		r.Delete("/state", handler.BackfillStateReset)
	})

	return r
}

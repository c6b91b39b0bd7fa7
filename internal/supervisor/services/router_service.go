// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package services

import (
	"context"
	"fmt"
)

// EventRouter matches the change-event router lifecycle.
//
// Satisfied by *eventrouter.Router: Run blocks until the context is
// canceled or the router fails, Close drains in-flight handlers.
type EventRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// EventRouterService wraps the change-event router as a supervised
// service. A router error is returned to suture, which restarts the
// service under its backoff policy; the durable JetStream consumer
// resumes from the last unacked message.
type EventRouterService struct {
	router EventRouter
	name   string
}

// NewEventRouterService creates a router service wrapper.
func NewEventRouterService(router EventRouter) *EventRouterService {
	return &EventRouterService{
		router: router,
		name:   "event-router",
	}
}

// Serve implements suture.Service.
func (s *EventRouterService) Serve(ctx context.Context) error {
	err := s.router.Run(ctx)
	if closeErr := s.router.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *EventRouterService) String() string {
	return s.name
}

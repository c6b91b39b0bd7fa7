// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package services

import (
	"context"
	"fmt"
)

// BackfillRunnerManager matches the backfill runner lifecycle.
//
// Satisfied by *scheduler.Runner.
type BackfillRunnerManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// BackfillRunnerService wraps the periodic backfill runner as a
// supervised service, adapting its Start/Stop lifecycle to suture's
// Serve pattern.
type BackfillRunnerService struct {
	manager BackfillRunnerManager
	name    string
}

// NewBackfillRunnerService creates a backfill runner service wrapper.
func NewBackfillRunnerService(manager BackfillRunnerManager) *BackfillRunnerService {
	return &BackfillRunnerService{
		manager: manager,
		name:    "backfill-runner",
	}
}

// Serve implements suture.Service. Start spawns the runner's internal
// loop; Serve blocks until the context is canceled, then stops the loop
// and waits for it to drain.
func (s *BackfillRunnerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("backfill runner start: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("backfill runner stop: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logs.
func (s *BackfillRunnerService) String() string {
	return s.name
}

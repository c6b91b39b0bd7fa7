// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package eventrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// RouterConfig holds configuration for the Watermill router hosting the
// change-event handlers.
type RouterConfig struct {
	// CloseTimeout is how long to wait for in-flight handlers on shutdown.
	CloseTimeout time.Duration

	// Retry configuration for transient handler failures.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonQueueTopic receives messages that exhaust their retries.
	// Empty disables the poison queue.
	PoisonQueueTopic string
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     "lumimd.changes.poison",
	}
}

// Router wires the change handler to the event subscriber behind a
// middleware stack: Recoverer converts panics to errors, Retry backs off
// transient failures, and PoisonQueue routes permanent failures to the
// dead-letter topic.
type Router struct {
	router *message.Router
	config RouterConfig
	logger watermill.LoggerAdapter
}

// NewRouter creates the router and registers one no-publisher handler per
// change topic. poisonPublisher may be nil when cfg.PoisonQueueTopic is
// empty.
func NewRouter(
	cfg RouterConfig,
	subscriber message.Subscriber,
	poisonPublisher message.Publisher,
	handler *ChangeHandler,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if handler == nil {
		return nil, fmt.Errorf("change handler required")
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.PoisonQueueTopic != "" {
		if poisonPublisher == nil {
			return nil, fmt.Errorf("poison queue topic set but no publisher provided")
		}
		poison, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	wmRouter.AddNoPublisherHandler("denorm-user-changes", TopicUserChanges, subscriber, handler.Handle)
	wmRouter.AddNoPublisherHandler("denorm-medication-changes", TopicMedicationChanges, subscriber, handler.Handle)

	return &Router{router: wmRouter, config: cfg, logger: logger}, nil
}

// Run starts the router and blocks until the context is canceled or the
// router fails. It implements the supervisor's service contract.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel closed once the router is running and all
// handlers are subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully shuts the router down.
func (r *Router) Close() error {
	return r.router.Close()
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package main is the entry point for the LumiMD denormalization service.
//
// The service keeps denormalized copies of user and medication fields
// consistent across shares, share invites, and medication reminders. It
// runs two paths against the same document store:
//
//   - Live propagation: change events arrive over NATS JetStream and a
//     Watermill router applies the resulting dependent-record updates.
//   - Backfill: a periodic job sweeps every dependent collection page by
//     page, correcting drift and filling historical defaults.
//
// Components run under a suture supervisor tree. Configuration is loaded
// via Koanf v2 (env over YAML file over defaults); see internal/config.
//
// One-shot flags run a single backfill action and exit instead of
// starting the service:
//
//	lumimd -backfill              run backfill pages until complete
//	lumimd -backfill -dry-run     report drift without writing
//	lumimd -reset-backfill-state  clear persisted progress
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tylerdmcanally/LumiMD-sub011/internal/api"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/config"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/denorm"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/docstore"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/eventrouter"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/logging"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/scheduler"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/supervisor"
	"github.com/tylerdmcanally/LumiMD-sub011/internal/supervisor/services"
)

func main() {
	backfillFlag := flag.Bool("backfill", false, "run backfill to completion and exit")
	dryRunFlag := flag.Bool("dry-run", false, "with -backfill: report drift without writing")
	pageSizeFlag := flag.Int("page-size", 0, "with -backfill: override page size (1-500)")
	resetStateFlag := flag.Bool("reset-backfill-state", false, "clear persisted backfill progress and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	db, err := openBadger(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing document store")
		}
	}()

	store, err := docstore.NewBadgerStore(db, docstore.DefaultIndexes)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize document store")
	}
	states, err := docstore.NewBadgerStateStore(db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize state store")
	}

	engine, err := denorm.NewEngine(store, states, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create backfill engine")
	}

	// One-shot operator commands bypass the supervisor entirely.
	if *resetStateFlag {
		if err := engine.ClearState(context.Background()); err != nil {
			logging.Fatal().Err(err).Msg("Failed to reset backfill state")
		}
		fmt.Println("backfill state reset")
		return
	}
	if *backfillFlag {
		if err := runBackfillToCompletion(engine, *pageSizeFlag, *dryRunFlag); err != nil {
			logging.Fatal().Err(err).Msg("Backfill failed")
		}
		return
	}

	propagator, err := denorm.NewPropagator(store, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create propagator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	var embedded *eventrouter.EmbeddedServer
	if cfg.NATS.Enabled {
		router, srv, err := initEventRouter(cfg, propagator, logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize event router")
		}
		embedded = srv
		tree.AddMessagingService(services.NewEventRouterService(router))
		logging.Info().Bool("embedded_server", cfg.NATS.EmbeddedServer).Msg("Event router initialized")
	} else {
		logging.Info().Msg("NATS disabled, live propagation not running")
	}
	defer func() {
		if embedded != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Embedded NATS shutdown")
			}
		}
	}()

	runner, err := scheduler.NewRunner(engine, logger, scheduler.Config{
		Enabled:       cfg.Backfill.Enabled,
		Interval:      cfg.Backfill.Interval,
		DrainInterval: cfg.Backfill.DrainInterval,
		PageSize:      cfg.Backfill.PageSize,
		RunTimeout:    cfg.Backfill.RunTimeout,
		MaxBackoff:    cfg.Backfill.MaxBackoff,
		DryRun:        cfg.Backfill.DryRun,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create backfill runner")
	}
	tree.AddJobService(services.NewBackfillRunnerService(runner))

	opsHandler, err := api.NewHandler(engine, func() bool { return cfg.Propagation.Enabled }, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create ops handler")
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(opsHandler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("addr", server.Addr).
		Bool("propagation_enabled", cfg.Propagation.Enabled).
		Bool("backfill_enabled", cfg.Backfill.Enabled).
		Msg("Starting LumiMD denormalization service")

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree terminated")
	}
	logging.Info().Msg("Shutdown complete")
}

// openBadger opens the Badger database per store configuration.
func openBadger(cfg config.StoreConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	return badger.Open(opts)
}

// initEventRouter wires the NATS transport and the Watermill router. When
// the embedded server is enabled, it is started first and its client URL
// replaces the configured one.
func initEventRouter(cfg *config.Config, propagator *denorm.Propagator, logger zerolog.Logger) (*eventrouter.Router, *eventrouter.EmbeddedServer, error) {
	wmLogger := eventrouter.NewWatermillLogger(logger)

	natsCfg := eventrouter.DefaultNATSConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.QueueGroup = cfg.NATS.QueueGroup
	natsCfg.DurableName = cfg.NATS.DurableName
	natsCfg.SubscribersCount = cfg.NATS.SubscribersCount
	natsCfg.AckWaitTimeout = cfg.NATS.AckWaitTimeout
	natsCfg.CloseTimeout = cfg.NATS.RouterCloseTimeout

	var embedded *eventrouter.EmbeddedServer
	if cfg.NATS.EmbeddedServer {
		srv, err := eventrouter.NewEmbeddedServer(eventrouter.ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          cfg.NATS.StoreDir,
			JetStreamMaxMem:   cfg.NATS.MaxMemory,
			JetStreamMaxStore: cfg.NATS.MaxStore,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		embedded = srv
		natsCfg.URL = srv.ClientURL()
	}

	subscriber, err := eventrouter.NewNATSSubscriber(natsCfg, wmLogger)
	if err != nil {
		return nil, embedded, fmt.Errorf("create subscriber: %w", err)
	}

	var poisonPublisher message.Publisher
	routerCfg := eventrouter.RouterConfig{
		CloseTimeout:         cfg.NATS.RouterCloseTimeout,
		RetryMaxRetries:      cfg.NATS.RouterRetryCount,
		RetryInitialInterval: cfg.NATS.RouterRetryInitialInterval,
		RetryMaxInterval:     cfg.NATS.RouterRetryMaxInterval,
		RetryMultiplier:      2.0,
	}
	if cfg.NATS.RouterPoisonQueueEnabled {
		routerCfg.PoisonQueueTopic = cfg.NATS.RouterPoisonQueueTopic
		poisonPublisher, err = eventrouter.NewNATSPublisher(natsCfg, wmLogger)
		if err != nil {
			return nil, embedded, fmt.Errorf("create poison publisher: %w", err)
		}
	}

	handler, err := eventrouter.NewChangeHandler(propagator, func() bool { return cfg.Propagation.Enabled }, logger)
	if err != nil {
		return nil, embedded, err
	}

	router, err := eventrouter.NewRouter(routerCfg, subscriber, poisonPublisher, handler, wmLogger)
	if err != nil {
		return nil, embedded, err
	}
	return router, embedded, nil
}

// runBackfillToCompletion invokes the engine until no collection reports
// further pages, printing per-page counts.
func runBackfillToCompletion(engine *denorm.Engine, pageSize int, dryRun bool) error {
	ctx := context.Background()
	for page := 1; ; page++ {
		result, err := engine.RunBackfill(ctx, denorm.BackfillOptions{
			PageSize: pageSize,
			DryRun:   dryRun,
		})
		if err != nil {
			return err
		}
		fmt.Printf("page %d: processed=%v updated=%v dryRun=%v\n",
			page, result.Processed, result.Updated, result.DryRun)
		if !result.HasMore {
			return nil
		}
		// Dry runs never advance the persisted cursor, so looping would
		// rescan the same first page forever.
		if dryRun {
			fmt.Println("dry run complete (first page only; cursors not advanced)")
			return nil
		}
	}
}

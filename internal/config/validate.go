// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateBackfill(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.embedded_server is disabled")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("nats.store_dir is required when nats.embedded_server is enabled")
	}
	if c.NATS.SubscribersCount < 1 {
		return fmt.Errorf("nats.subscribers_count must be at least 1, got %d", c.NATS.SubscribersCount)
	}
	if c.NATS.RouterRetryCount < 0 {
		return fmt.Errorf("nats.router_retry_count must not be negative, got %d", c.NATS.RouterRetryCount)
	}
	if c.NATS.RouterPoisonQueueEnabled && c.NATS.RouterPoisonQueueTopic == "" {
		return fmt.Errorf("nats.router_poison_queue_topic is required when the poison queue is enabled")
	}
	return nil
}

func (c *Config) validateBackfill() error {
	if c.Backfill.PageSize < 1 || c.Backfill.PageSize > 500 {
		return fmt.Errorf("backfill.page_size must be between 1 and 500, got %d", c.Backfill.PageSize)
	}
	if c.Backfill.Enabled {
		if c.Backfill.Interval <= 0 {
			return fmt.Errorf("backfill.interval must be positive")
		}
		if c.Backfill.DrainInterval <= 0 {
			return fmt.Errorf("backfill.drain_interval must be positive")
		}
		if c.Backfill.RunTimeout <= 0 {
			return fmt.Errorf("backfill.run_timeout must be positive")
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "":
	default:
		return fmt.Errorf("logging.level %q is not a valid zerolog level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

// Package config provides layered configuration loading via Koanf v2.
// Precedence is environment variables over the optional YAML file over
// built-in defaults.
package config

import "time"

// Config is the top-level application configuration.
type Config struct {
	Store       StoreConfig       `koanf:"store"`
	NATS        NATSConfig        `koanf:"nats"`
	Propagation PropagationConfig `koanf:"propagation"`
	Backfill    BackfillConfig    `koanf:"backfill"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// StoreConfig configures the Badger document store.
type StoreConfig struct {
	// Path is the Badger data directory.
	Path string `koanf:"path"`

	// InMemory runs Badger without persistence. Test and dev only.
	InMemory bool `koanf:"in_memory"`
}

// NATSConfig configures change-event transport.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts an in-process JetStream server and ignores URL.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`

	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterRetryMaxInterval     time.Duration `koanf:"router_retry_max_interval"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// PropagationConfig controls the live propagation path.
type PropagationConfig struct {
	// Enabled is the process-wide kill switch. Disabled acks change events
	// without writing; the backfill catches up once re-enabled.
	Enabled bool `koanf:"enabled"`
}

// BackfillConfig controls the periodic reconciliation job.
type BackfillConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval"`
	DrainInterval time.Duration `koanf:"drain_interval"`
	PageSize      int           `koanf:"page_size"`
	RunTimeout    time.Duration `koanf:"run_timeout"`
	MaxBackoff    time.Duration `koanf:"max_backoff"`
	DryRun        bool          `koanf:"dry_run"`
}

// ServerConfig configures the ops HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are
// layered first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:     "/data/lumimd/store",
			InMemory: false,
		},
		NATS: NATSConfig{
			Enabled:          true,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/lumimd/jetstream",
			MaxMemory:        1 << 30,
			MaxStore:         10 << 30,
			DurableName:      "lumimd-denorm",
			QueueGroup:       "lumimd-denorm",
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,

			RouterRetryCount:           5,
			RouterRetryInitialInterval: time.Second,
			RouterRetryMaxInterval:     time.Minute,
			RouterPoisonQueueEnabled:   true,
			RouterPoisonQueueTopic:     "lumimd.changes.poison",
			RouterCloseTimeout:         30 * time.Second,
		},
		Propagation: PropagationConfig{
			Enabled: true,
		},
		Backfill: BackfillConfig{
			Enabled:       true,
			Interval:      6 * time.Hour,
			DrainInterval: 5 * time.Second,
			PageSize:      250,
			RunTimeout:    2 * time.Minute,
			MaxBackoff:    5 * time.Minute,
			DryRun:        false,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8745,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

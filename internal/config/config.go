// Package config loads the pipeline's TOML configuration file and overlays
// environment variables, following the same "secrets never in the file"
// discipline the engine's main.go documents for its own env handling.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// RPC holds the Bitcoin Core JSON-RPC connection and fan-out parameters.
type RPC struct {
	URL                 string  `toml:"url"`
	Username             string  `toml:"-"` // BTC_RPC_USER only, never TOML
	Password             string  `toml:"-"` // BTC_RPC_PASS only, never TOML
	TimeoutSeconds       int     `toml:"timeout_seconds"`
	MaxRetries           int     `toml:"max_retries"`
	InitialBackoffMs     int     `toml:"initial_backoff_ms"`
	BackoffMultiplier    float64 `toml:"backoff_multiplier"`
	MaxBackoffSeconds    int     `toml:"max_backoff_seconds"`
	ConcurrentRequests   int     `toml:"concurrent_requests"`
}

// Config is the merged TOML + env configuration for all three stages.
type Config struct {
	DatabasePath       string `toml:"database_path"`
	CSVPath            string `toml:"csv_path"`
	BatchSize          int    `toml:"batch_size"`
	ProgressIntervalMs int    `toml:"progress_interval_ms"`
	CheckpointInterval int    `toml:"checkpoint_interval"`
	RPC                RPC    `toml:"rpc"`
}

func defaults() Config {
	return Config{
		DatabasePath:       "p2ms.db",
		CSVPath:            "utxo_dump.csv",
		BatchSize:          1000,
		ProgressIntervalMs: 500,
		CheckpointInterval: 10,
		RPC: RPC{
			TimeoutSeconds:     30,
			MaxRetries:         5,
			InitialBackoffMs:   250,
			BackoffMultiplier:  2.0,
			MaxBackoffSeconds:  30,
			ConcurrentRequests: 16,
		},
	}
}

// Load reads the TOML file at path (if it exists; a missing file is not an
// error — defaults plus env apply), then overlays environment overrides.
// RPC credentials may only be supplied via BTC_RPC_USER/BTC_RPC_PASS.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, NewError(KindConfig, "parse toml", err)
			}
		case os.IsNotExist(err):
			// defaults + env only
		default:
			return nil, NewError(KindIo, "read config file", err)
		}
	}

	if v := os.Getenv("P2MS_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("P2MS_CSV_PATH"); v != "" {
		cfg.CSVPath = v
	}
	if v := os.Getenv("P2MS_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, NewError(KindConfig, "parse P2MS_BATCH_SIZE", err)
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("P2MS_RPC_URL"); v != "" {
		cfg.RPC.URL = v
	}

	cfg.RPC.Username = requireEnv("BTC_RPC_USER")
	cfg.RPC.Password = requireEnv("BTC_RPC_PASS")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RPC.URL == "" {
		return NewError(KindConfig, "validate", fmt.Errorf("rpc.url is required (set in TOML or P2MS_RPC_URL)"))
	}
	if c.BatchSize <= 0 {
		return NewError(KindConfig, "validate", fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.RPC.ConcurrentRequests <= 0 {
		return NewError(KindConfig, "validate", fmt.Errorf("rpc.concurrent_requests must be positive, got %d", c.RPC.ConcurrentRequests))
	}
	if c.RPC.Username == "" || c.RPC.Password == "" {
		return NewError(KindConfig, "validate", fmt.Errorf("BTC_RPC_USER and BTC_RPC_PASS environment variables are required"))
	}
	return nil
}

// requireEnv reads an environment variable without a fallback default —
// RPC credentials are the one class of value that must never ship as a
// TOML-file default. Absence is reported by validate, not here, so Load can
// still assemble a full error list style message if more checks are added.
func requireEnv(key string) string {
	return os.Getenv(key)
}

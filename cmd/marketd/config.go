package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the marketd configuration file schema. Flags override
// whatever the file sets.
type Config struct {
	HorizonURL    string `yaml:"horizon_url"`
	StreamURL     string `yaml:"stream_url"`
	OffchainURL   string `yaml:"offchain_url"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	UseMemory     bool   `yaml:"use_memory"`

	EscrowAccount  string `yaml:"escrow_account"`
	SigningSeedHex string `yaml:"signing_seed_hex"`

	ListenAddr    string        `yaml:"listen_addr"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	BidCacheTTL   time.Duration `yaml:"bid_cache_ttl"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		SweepInterval: time.Minute,
		BidCacheTTL:   5 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Package config provides configuration loading and structs for the postlsh server.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// MaxProjections is the largest number of projections per table; the index
// packs a table signature into a uint64.
const MaxProjections = 64

// Config holds all configuration for the application.
type Config struct {
	Debug  bool         `yaml:"debug"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	LSH    LSHConfig    `yaml:"lsh"`
	Ingest IngestConfig `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RedisConfig holds the KV/pub-sub connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns host:port of the Redis server.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// LSHConfig holds the index shape. Projections is K, Tables is L.
type LSHConfig struct {
	Projections int   `yaml:"projections"`
	Tables      int   `yaml:"tables"`
	Dim         int   `yaml:"dim"`
	Seed        int64 `yaml:"seed"`
}

// IngestConfig holds background ingestion settings.
type IngestConfig struct {
	// Workers > 0 hands insertions to a pool of that many goroutines.
	Workers       int `yaml:"workers"`
	MaxReconnects int `yaml:"max_reconnects"`
	BackfillBatch int `yaml:"backfill_batch"`
}

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file at path (skipped when path is empty), the .env file in the working
// directory, and the process environment.
func Load(path string) (*Config, error) {
	return load(path, DefaultEnvFile, os.LookupEnv)
}

func load(path, envFile string, lookupEnv func(string) (string, bool)) (*Config, error) {
	// Seed 0 is a valid seed, so its default is set before any layer instead of
	// in ApplyDefaults.
	cfg := Config{LSH: LSHConfig{Seed: DefaultSeed}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	dotenv, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis port out of range: %d", c.Redis.Port))
	}
	if c.LSH.Projections <= 0 || c.LSH.Projections > MaxProjections {
		errs = append(errs, fmt.Errorf("lsh projections must be in [1,%d], got %d", MaxProjections, c.LSH.Projections))
	}
	if c.LSH.Tables <= 0 {
		errs = append(errs, fmt.Errorf("lsh tables must be positive, got %d", c.LSH.Tables))
	}
	if c.LSH.Dim <= 0 {
		errs = append(errs, fmt.Errorf("lsh dim must be positive, got %d", c.LSH.Dim))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server shutdown timeout must not be negative, got %s", c.Server.ShutdownTimeout))
	}
	if c.Ingest.Workers < 0 {
		errs = append(errs, fmt.Errorf("ingest workers must not be negative, got %d", c.Ingest.Workers))
	}
	if c.Ingest.MaxReconnects < 0 {
		errs = append(errs, fmt.Errorf("ingest max reconnects must not be negative, got %d", c.Ingest.MaxReconnects))
	}
	if c.Ingest.BackfillBatch < 0 {
		errs = append(errs, fmt.Errorf("ingest backfill batch must not be negative, got %d", c.Ingest.BackfillBatch))
	}
	return errors.Join(errs...)
}

func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

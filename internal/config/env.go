package config

import (
	"fmt"
	"strconv"
)

// Environment variable names. RUST_API_* are kept for compatibility with the
// deployment manifests that predate this server.
const (
	EnvRedisHost      = "REDIS_HOST"
	EnvRedisPort      = "REDIS_PORT"
	EnvRedisPassword  = "REDIS_PASSWORD"
	EnvRedisDB        = "REDIS_DB"
	EnvAPIHost        = "RUST_API_HOST"
	EnvAPIPort        = "RUST_API_PORT"
	EnvLSHProjections = "LSH_PROJECTIONS"
	EnvLSHTables      = "LSH_TABLES"
	EnvLSHDim         = "LSH_DIM"
	EnvLSHSeed        = "LSH_SEED"
	EnvIngestWorkers  = "INGEST_WORKERS"
	EnvDebug          = "DEBUG"
)

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRedisHost); ok && v != "" {
		cfg.Redis.Host = v
	}
	if v, ok := lookup(EnvRedisPassword); ok {
		cfg.Redis.Password = v
	}
	if v, ok := lookup(EnvAPIHost); ok && v != "" {
		cfg.Server.Host = v
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvRedisPort, &cfg.Redis.Port},
		{EnvRedisDB, &cfg.Redis.DB},
		{EnvAPIPort, &cfg.Server.Port},
		{EnvLSHProjections, &cfg.LSH.Projections},
		{EnvLSHTables, &cfg.LSH.Tables},
		{EnvLSHDim, &cfg.LSH.Dim},
		{EnvIngestWorkers, &cfg.Ingest.Workers},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.name, v, err)
		}
		*e.dst = n
	}
	if v, ok := lookup(EnvLSHSeed); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvLSHSeed, v, err)
		}
		cfg.LSH.Seed = seed
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDebug, v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

package config

import "time"

// Reference index shape. 30,000 tables of 25 projections over 768 dims holds
// roughly 2.3 GB of projection planes; lower LSH_TABLES for small hosts.
const (
	DefaultProjections = 25
	DefaultTables      = 30000
	DefaultDim         = 768
	DefaultSeed        = 31
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.LSH.Projections == 0 {
		cfg.LSH.Projections = DefaultProjections
	}
	if cfg.LSH.Tables == 0 {
		cfg.LSH.Tables = DefaultTables
	}
	if cfg.LSH.Dim == 0 {
		cfg.LSH.Dim = DefaultDim
	}
	if cfg.Ingest.MaxReconnects == 0 {
		cfg.Ingest.MaxReconnects = 10
	}
	if cfg.Ingest.BackfillBatch == 0 {
		cfg.Ingest.BackfillBatch = 500
	}
}

package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger for the named service. When debug is true it
// uses the development config (console, debug level, colored levels);
// otherwise the production config (JSON, info level) with ISO-8601 times.
func NewLogger(service string, debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if service != "" {
		cfg.InitialFields = map[string]interface{}{"service": service}
	}
	return cfg.Build()
}

// SyncLogger flushes logger, ignoring the error returned when stderr is a
// terminal or pipe that does not support fsync.
func SyncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}

// Package logging builds the node's zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for the given preset ("development" or "production")
// at level ("debug", "info", "warn", "error"). Empty values pick development
// at info.
func New(preset, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(preset) {
	case "", "development", "dev":
		cfg = zap.NewDevelopmentConfig()
	case "production", "prod":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log preset %q", preset)
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

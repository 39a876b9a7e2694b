// Package logging constructs the logr.Logger used across the service.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	// Development enables console encoding and debug level.
	Development bool
	// Level raises verbosity when positive; 0 is info.
	Level int
}

// NewLogger builds a zap-backed logr.Logger.
func NewLogger(opts Options) (logr.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if opts.Level > 0 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-opts.Level)) //nolint:gosec // small verbosity values
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

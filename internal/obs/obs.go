// Package obs builds the structured logger used across the store. The
// construction mirrors maulikxg-ReportDB's utils.InitLogger: a
// zap.Config chosen by environment, with an ISO8601 time encoder, rather
// than a bare log.Logger or a package-level Fatal-on-error global.
package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger for the given level name ("debug", "info",
// "warn", "error"; anything else falls back to "info"). production selects
// the JSON production encoder; otherwise the console development encoder
// is used, matching the split the teacher's logger.go makes between its
// production and development configs.
func New(level string, production bool) *zap.Logger {
	lvl := parseLevel(level)

	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		// Config built above is always valid (no file output paths to
		// fail on), so this is unreachable in practice; fall back to a
		// no-op logger rather than panicking a library caller.
		return zap.NewNop()
	}
	return logger
}

// NewNop returns a logger that discards everything, used as the default
// when a caller (tests, library embedding) does not supply one.
func NewNop() *zap.Logger { return zap.NewNop() }

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

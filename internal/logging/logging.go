// Package logging builds the zap.Logger every long-lived service in this
// engine is handed, the same SetLogger(*zap.Logger)-with-a-Nop-default
// convention inodb-vibe-vep's Annotator uses.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON-encoded zap.Logger at level, one of
// "debug"|"info"|"warn"|"error" (case-insensitive). An unrecognized level
// defaults to info rather than failing startup over a typo in
// VARDA_LOG_LEVEL.
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return logger, nil
}

// Nop returns a no-op logger, the default every component in this engine
// falls back to before a real logger is wired in.
func Nop() *zap.Logger { return zap.NewNop() }

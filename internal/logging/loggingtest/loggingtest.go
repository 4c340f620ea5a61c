// Package loggingtest provides loggers that record entries in memory for
// tests that assert on log output.
package loggingtest

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/worldforge/internal/logging"
)

// New returns a logger that records entries at level and above.
func New(level zapcore.Level) (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &logging.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

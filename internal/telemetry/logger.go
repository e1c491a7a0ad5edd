// Package telemetry wires up the process-wide structured logger used by
// the scheduler, block store, and coordinator. It exists so those
// packages never construct a *zap.Logger themselves, matching the
// teacher's single global log.Printf convention but with structured
// fields in place of ad hoc "[Component] message" string prefixes.
package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// L returns the process-wide logger, lazily building a production zap
// logger on first use.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	}
	return logger
}

// SetLogger overrides the process-wide logger, e.g. with a
// zaptest.NewLogger(t) in tests or a development logger in cmd/schedulerd.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Sugar returns the process-wide logger's SugaredLogger, for call sites
// that want the teacher's printf-style ergonomics.
func Sugar() *zap.SugaredLogger {
	return L().Sugar()
}

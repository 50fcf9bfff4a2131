// testing.go
package logger

import (
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger returns a logger that records every entry at or above
// TRACE in memory, plus the observer used to inspect them.
func NewTestLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(traceLevel)
	return NewCentralLoggerWithCore(core).Module("test"), logs
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return NewCentralLoggerWithCore(zapcore.NewNopCore()).Module("discard")
}

package logger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// traceLevel sits below zap's DebugLevel (-1); zap has no native trace level.
	traceLevel = zapcore.Level(-2)

	// floatPrecisionRatio rounds floats to 3 decimal places in log output
	floatPrecisionRatio = 1000.0
)

// Global logger instance
var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal sets the global CentralLogger instance.
// This should be called once during application startup after loading configuration.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the global CentralLogger instance.
// If no logger has been set via SetGlobal, it returns a console-only fallback.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger != nil {
		return globalLogger
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	globalLogger = &CentralLogger{
		zap:   zap.New(newConsoleCore(level)),
		level: level,
	}
	return globalLogger
}

// CentralLogger owns the zap cores and hands out module-scoped loggers.
type CentralLogger struct {
	zap     *zap.Logger
	level   zap.AtomicLevel
	rotator *lumberjack.Logger // nil when file output is disabled
	mu      sync.Mutex
}

// NewCentralLogger creates a logger writing slog text lines to the console
// and, when configured, zap JSON lines to a file rotated by lumberjack.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	cfg.applyDefaults()

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	atomic := zap.NewAtomicLevelAt(level)

	cl := &CentralLogger{level: atomic}

	var cores []zapcore.Core
	if cfg.Console {
		cores = append(cores, newConsoleCore(atomic))
	}
	if cfg.File != nil && cfg.File.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cl.rotator = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig()),
			zapcore.AddSync(cl.rotator),
			atomic,
		))
	}

	cl.zap = zap.New(zapcore.NewTee(cores...))
	return cl, nil
}

// NewCentralLoggerWithCore wraps an existing zap core. Intended for tests.
func NewCentralLoggerWithCore(core zapcore.Core) *CentralLogger {
	return &CentralLogger{
		zap:   zap.New(core),
		level: zap.NewAtomicLevelAt(traceLevel),
	}
}

// Module creates a logger scoped to the named module.
func (cl *CentralLogger) Module(name string) Logger {
	return &moduleLogger{module: name, zap: cl.zap}
}

// SetLevel changes the minimum level at runtime.
func (cl *CentralLogger) SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	cl.level.SetLevel(lvl)
	return nil
}

// Flush syncs all cores.
func (cl *CentralLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return ignoreStdSyncError(cl.zap.Sync())
}

// Close flushes pending entries and closes the log file, if any.
func (cl *CentralLogger) Close() error {
	flushErr := cl.Flush()

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.rotator != nil {
		if err := cl.rotator.Close(); err != nil {
			return errors.Join(flushErr, err)
		}
		cl.rotator = nil
	}
	return flushErr
}

func newConsoleCore(level zap.AtomicLevel) zapcore.Core {
	return newSlogConsoleCore(os.Stdout, level)
}

func fileEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = levelEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	return encCfg
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(l, enc)
}

func parseLevel(level string) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(level))) {
	case LogLevelTrace:
		return traceLevel, nil
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo, "":
		return zapcore.InfoLevel, nil
	case LogLevelWarn, "warning":
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// ignoreStdSyncError drops the errors returned when syncing a terminal.
func ignoreStdSyncError(err error) error {
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// moduleLogger is the Logger handed out by CentralLogger.Module.
type moduleLogger struct {
	module string
	zap    *zap.Logger
	fields []Field
}

// Module creates a sub-module logger. Fields are copied so later changes
// to the parent do not leak into the child.
func (m *moduleLogger) Module(name string) Logger {
	return &moduleLogger{
		module: m.module + "." + name,
		zap:    m.zap,
		fields: slices.Clone(m.fields),
	}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(traceLevel, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(zapcore.DebugLevel, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(zapcore.InfoLevel, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(zapcore.WarnLevel, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(zapcore.ErrorLevel, msg, fields) }

// Log logs a message with explicit level
func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	lvl, err := parseLevel(string(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	m.log(lvl, msg, fields)
}

// With returns a new logger with accumulated fields
func (m *moduleLogger) With(fields ...Field) Logger {
	return &moduleLogger{
		module: m.module,
		zap:    m.zap,
		fields: slices.Concat(m.fields, fields),
	}
}

// WithContext returns a logger carrying the context's trace ID, if any.
func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return m
	}
	return m.With(String(traceIDKey, traceID))
}

// Flush is a no-op; the CentralLogger owns the underlying writers.
func (m *moduleLogger) Flush() error {
	return nil
}

func (m *moduleLogger) log(level zapcore.Level, msg string, fields []Field) {
	ce := m.zap.Check(level, msg)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, len(m.fields)+len(fields)+1)
	if m.module != "" {
		zf = append(zf, zap.String(moduleKey, m.module))
	}
	for i := range m.fields {
		zf = append(zf, toZapField(m.fields[i]))
	}
	for i := range fields {
		zf = append(zf, toZapField(fields[i]))
	}
	ce.Write(zf...)
}

func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case nil:
		return zap.Skip()
	case string:
		return zap.String(f.Key, RedactSensitiveValue(f.Key, v))
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case uint:
		return zap.Uint(f.Key, v)
	case uint64:
		return zap.Uint64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, math.Round(v*floatPrecisionRatio)/floatPrecisionRatio)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v.Round(time.Millisecond))
	default:
		return zap.Any(f.Key, v)
	}
}

package logger

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"go.uber.org/zap/zapcore"
)

// traceSlogLevel is what TRACE maps to on the slog side, below slog.LevelDebug.
const traceSlogLevel = slog.Level(-8)

// slogCore is a zapcore.Core that renders entries through an slog text
// handler. The console gets slog's key=value output while the file core and
// the test observer stay on zap, so every Logger call fans out through one
// zap tee.
type slogCore struct {
	zapcore.LevelEnabler
	handler slog.Handler
	fields  []zapcore.Field
}

// newSlogConsoleCore writes human readable lines to w. Filtering is left
// to level, the handler itself accepts everything.
func newSlogConsoleCore(w io.Writer, level zapcore.LevelEnabler) zapcore.Core {
	return &slogCore{
		LevelEnabler: level,
		handler:      newTextHandler(w),
	}
}

func newTextHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: traceSlogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				// journald and docker add their own timestamps
				return slog.Attr{}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl < slog.LevelDebug {
					return slog.String(slog.LevelKey, "TRACE")
				}
			}
			return a
		},
	})
}

func (c *slogCore) With(fields []zapcore.Field) zapcore.Core {
	return &slogCore{
		LevelEnabler: c.LevelEnabler,
		handler:      c.handler,
		fields:       slices.Concat(c.fields, fields),
	}
}

func (c *slogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *slogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	record := slog.NewRecord(ent.Time, toSlogLevel(ent.Level), ent.Message, 0)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range slices.Concat(c.fields, fields) {
		if f.Type == zapcore.SkipType {
			continue
		}
		f.AddTo(enc)
		record.AddAttrs(slog.Any(f.Key, enc.Fields[f.Key]))
	}
	return c.handler.Handle(context.Background(), record)
}

func (c *slogCore) Sync() error {
	return nil
}

func toSlogLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= traceLevel:
		return traceSlogLevel
	case l == zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

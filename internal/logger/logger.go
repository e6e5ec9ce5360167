// Package logger provides a context-aware structured logger backed by logrus.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level is the minimum severity a Logger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// LoggerInterface is the logging contract every component depends on.
// Arguments after msg are alternating key/value pairs.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	Debugc(ctx context.Context, caller int, msg string, args ...any)
	Infoc(ctx context.Context, caller int, msg string, args ...any)
	Warnc(ctx context.Context, caller int, msg string, args ...any)
	Errorc(ctx context.Context, caller int, msg string, args ...any)
}

// TraceIDFn extracts a trace id from the context. Nil uses the OTel span context.
type TraceIDFn func(ctx context.Context) string

// Logger implements LoggerInterface.
type Logger struct {
	entry     *logrus.Entry
	traceIDFn TraceIDFn
}

var _ LoggerInterface = (*Logger)(nil)

// New constructs a JSON logger writing to w.
func New(w io.Writer, level Level, service string, traceIDFn TraceIDFn) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.logrus())
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	if traceIDFn == nil {
		traceIDFn = otelTraceID
	}

	return &Logger{
		entry:     l.WithField("service", service),
		traceIDFn: traceIDFn,
	}
}

// FileConfig configures a rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// NewRotating constructs a logger writing to a lumberjack-rotated file and,
// when alsoStderr is set, to stderr as well.
func NewRotating(cfg FileConfig, level Level, service string, alsoStderr bool) *Logger {
	var w io.Writer = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	if alsoStderr {
		w = io.MultiWriter(os.Stderr, w)
	}
	return New(w, level, service, nil)
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.write(ctx, logrus.DebugLevel, 3, msg, args)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.write(ctx, logrus.InfoLevel, 3, msg, args)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.write(ctx, logrus.WarnLevel, 3, msg, args)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.write(ctx, logrus.ErrorLevel, 3, msg, args)
}

// Debugc logs with the caller frame adjusted by caller extra levels.
func (l *Logger) Debugc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, logrus.DebugLevel, 3+caller, msg, args)
}

func (l *Logger) Infoc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, logrus.InfoLevel, 3+caller, msg, args)
}

func (l *Logger) Warnc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, logrus.WarnLevel, 3+caller, msg, args)
}

func (l *Logger) Errorc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, logrus.ErrorLevel, 3+caller, msg, args)
}

func (l *Logger) write(ctx context.Context, level logrus.Level, skip int, msg string, args []any) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}

	fields := make(logrus.Fields, len(args)/2+2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 < len(args) {
			fields[key] = normalize(args[i+1])
		} else {
			fields[key] = "(MISSING)"
		}
	}

	if _, file, line, ok := runtime.Caller(skip - 1); ok {
		fields["caller"] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	if ctx != nil {
		if id := l.traceIDFn(ctx); id != "" {
			fields["trace_id"] = id
		}
	}

	l.entry.WithFields(fields).Log(level, msg)
}

// normalize keeps errors readable in JSON output.
func normalize(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}

func otelTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

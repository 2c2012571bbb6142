package maze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Logger is the structured logging interface implemented across the
// module, mirroring the reference framework's Logger/ComponentAwareLogger
// split: a plain Logger for leaf components, WithComponent for
// attribution when one is embedded in another.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	InfoContext(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorContext(ctx context.Context, msg string, keysAndValues ...interface{})
}

// ComponentLogger scopes a Logger to a named component (e.g.
// "constraint.cache", "refinement.scheduler").
type ComponentLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. It is the default when a caller does
// not configure a Logger; tests and library embedders should not be
// forced to produce output.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, ...interface{})                          {}
func (NoOpLogger) Error(string, ...interface{})                         {}
func (NoOpLogger) Warn(string, ...interface{})                          {}
func (NoOpLogger) Debug(string, ...interface{})                         {}
func (NoOpLogger) InfoContext(context.Context, string, ...interface{})  {}
func (NoOpLogger) ErrorContext(context.Context, string, ...interface{}) {}
func (NoOpLogger) WithComponent(string) Logger                          { return NoOpLogger{} }

// LogFormat selects the rendering used by StructuredLogger.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// StructuredLogger writes either single-line JSON or human-readable text
// to an io.Writer, matching the reference framework's ProductionLogger.
type StructuredLogger struct {
	component string
	format    LogFormat
	debug     bool
	out       io.Writer
}

// NewStructuredLogger builds a StructuredLogger for a component name.
// debug enables Debug-level output; format selects rendering.
func NewStructuredLogger(component string, format LogFormat, debug bool) *StructuredLogger {
	return &StructuredLogger{component: component, format: format, debug: debug, out: os.Stderr}
}

func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{component: component, format: l.format, debug: l.debug, out: l.out}
}

func (l *StructuredLogger) Info(msg string, kv ...interface{}) {
	l.log("info", msg, kv...)
}

func (l *StructuredLogger) Error(msg string, kv ...interface{}) {
	l.log("error", msg, kv...)
}

func (l *StructuredLogger) Warn(msg string, kv ...interface{}) {
	l.log("warn", msg, kv...)
}

func (l *StructuredLogger) Debug(msg string, kv ...interface{}) {
	if !l.debug {
		return
	}
	l.log("debug", msg, kv...)
}

func (l *StructuredLogger) InfoContext(_ context.Context, msg string, kv ...interface{}) {
	l.Info(msg, kv...)
}

func (l *StructuredLogger) ErrorContext(_ context.Context, msg string, kv ...interface{}) {
	l.Error(msg, kv...)
}

func (l *StructuredLogger) log(level, msg string, kv ...interface{}) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if l.format == LogFormatJSON {
		fields := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"component": l.component,
			"message":   msg,
		}
		for i := 0; i+1 < len(kv); i += 2 {
			if key, ok := kv[i].(string); ok {
				fields[key] = kv[i+1]
			}
		}
		enc, err := json.Marshal(fields)
		if err != nil {
			return
		}
		fmt.Fprintln(l.out, string(enc))
		return
	}
	line := fmt.Sprintf("%s [%s] %s: %s", ts, level, l.component, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		line += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	fmt.Fprintln(l.out, line)
}

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Logger is the printf-style logging contract every package depends on.
// Tests pass Nop() or a recording stub.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil, including a typed nil behind the
// interface.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	switch v := reflect.ValueOf(logger); v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return v.IsNil()
	}
	return false
}

// OrNop returns logger, or Nop() when logger IsNil.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// componentLogger formats printf-style messages and forwards them to the
// process-wide slog default handler, tagged with the component name.
type componentLogger struct {
	component string
	attrs     []any
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

// With returns a component logger that attaches key/value pairs to every record.
func With(logger Logger, args ...any) Logger {
	cl, ok := logger.(*componentLogger)
	if !ok || len(args) == 0 {
		return OrNop(logger)
	}
	attrs := make([]any, 0, len(cl.attrs)+len(args))
	attrs = append(attrs, cl.attrs...)
	attrs = append(attrs, args...)
	return &componentLogger{component: cl.component, attrs: attrs}
}

func (l *componentLogger) log(level slog.Level, format string, args ...any) {
	logger := slog.Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	attrs := make([]any, 0, len(l.attrs)+2)
	attrs = append(attrs, "component", l.component)
	attrs = append(attrs, l.attrs...)
	logger.Log(ctx, level, msg, attrs...)
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

type multiLogger []Logger

// Multi fans every call out to each non-nil logger in order. Nested Multi
// loggers are flattened.
func Multi(loggers ...Logger) Logger {
	var flat multiLogger
	for _, logger := range loggers {
		switch l := logger.(type) {
		case multiLogger:
			flat = append(flat, l...)
		default:
			if !IsNil(logger) {
				flat = append(flat, logger)
			}
		}
	}
	switch len(flat) {
	case 0:
		return Nop()
	case 1:
		return flat[0]
	}
	return flat
}

func (m multiLogger) each(fn func(Logger)) {
	for _, logger := range m {
		fn(logger)
	}
}

func (m multiLogger) Debug(format string, args ...any) {
	m.each(func(l Logger) { l.Debug(format, args...) })
}

func (m multiLogger) Info(format string, args ...any) {
	m.each(func(l Logger) { l.Info(format, args...) })
}

func (m multiLogger) Warn(format string, args ...any) {
	m.each(func(l Logger) { l.Warn(format, args...) })
}

func (m multiLogger) Error(format string, args ...any) {
	m.each(func(l Logger) { l.Error(format, args...) })
}

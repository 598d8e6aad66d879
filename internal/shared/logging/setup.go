package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

var level = new(slog.LevelVar)

// Options configures the process-wide slog handler chain.
type Options struct {
	Level   string
	Format  string // console or json
	File    string
	NoColor bool
	Output  io.Writer
}

// Setup installs the default slog handler: a tinted console handler (or JSON
// when Format is "json") fanned out to an optional JSON log file. The returned
// closer releases the log file.
func Setup(opts Options) (io.Closer, error) {
	if err := SetLevel(opts.Level); err != nil {
		return nil, err
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	var handlers []slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	default:
		handlers = append(handlers, tint.NewHandler(output, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		}))
	}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
		closer = file
	}

	if len(handlers) == 1 {
		slog.SetDefault(slog.New(handlers[0]))
	} else {
		slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	}
	return closer, nil
}

// SetLevel changes the minimum level of the installed handlers.
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		level.Set(slog.LevelInfo)
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Mode uint8

const (
	ModeCLI Mode = iota + 1
	ModeDashboard
)

func (m Mode) String() string {
	switch m {
	case ModeDashboard:
		return "dashboard"
	default:
		return "cli"
	}
}

type InitOptions struct {
	Mode    Mode
	Version string
	// DefaultFile is the file sink path when the config names none.
	DefaultFile string
}

// Init builds the logger described by cfg (merged over the mode defaults and
// the environment) and installs it as slog.Default. The returned func closes
// the file sink.
func Init(cfg Config, opts InitOptions) (*slog.Logger, func() error, error) {
	if opts.Mode == 0 {
		opts.Mode = ModeCLI
	}
	cfg = Merge(DefaultConfig(opts.Mode), cfg).WithEnv()
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, nil, err
	}

	sink := SinkStderr
	if normalized.Sink != nil {
		sink = Sink(*normalized.Sink)
	}
	writer, closeFn, err := resolveWriter(normalized, sink, opts.DefaultFile)
	if err != nil {
		return nil, nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     parseLevel(normalized.Level),
		AddSource: normalized.AddSource != nil && *normalized.AddSource,
	}
	var handler slog.Handler
	if normalized.Format != nil && Format(*normalized.Format) == FormatJSON {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	logger := slog.New(handler).With(slog.String("mode", opts.Mode.String()))
	if opts.Version != "" {
		logger = logger.With(slog.String("version", opts.Version))
	}
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func parseLevel(value *string) slog.Leveler {
	if value == nil {
		return slog.LevelInfo
	}
	switch *value {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveWriter(cfg Config, sink Sink, defaultFile string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch sink {
	case SinkNone:
		return io.Discard, nop, nil
	case SinkStderr:
		return os.Stderr, nop, nil
	case SinkFile:
		path := strings.TrimSpace(defaultFile)
		if cfg.File != nil {
			path = *cfg.File
		}
		if path == "" {
			return nil, nil, fmt.Errorf("logging: file sink needs a path")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		rot := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    derefInt(cfg.MaxSizeMB, 10),
			MaxBackups: derefInt(cfg.MaxBackups, 3),
			MaxAge:     derefInt(cfg.MaxAgeDays, 14),
			Compress:   cfg.Compress == nil || *cfg.Compress,
		}
		return rot, rot.Close, nil
	default:
		return nil, nil, fmt.Errorf("logging: unknown sink %q", sink)
	}
}

func derefInt(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

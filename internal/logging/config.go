// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Sink string

const (
	SinkStderr Sink = "stderr"
	SinkFile   Sink = "file"
	SinkNone   Sink = "none"
)

const (
	EnvLogLevel      = "MICRORUN_LOG_LEVEL"
	EnvLogFormat     = "MICRORUN_LOG_FORMAT"
	EnvLogSink       = "MICRORUN_LOG_SINK"
	EnvLogFile       = "MICRORUN_LOG_FILE"
	EnvLogMaxSizeMB  = "MICRORUN_LOG_MAX_SIZE_MB"
	EnvLogMaxBackups = "MICRORUN_LOG_MAX_BACKUPS"
)

// Config is the logging section of config.yaml. Nil fields take the mode
// defaults.
type Config struct {
	Level     *string `yaml:"level,omitempty"`
	Format    *string `yaml:"format,omitempty"`
	Sink      *string `yaml:"sink,omitempty"`
	File      *string `yaml:"file,omitempty"`
	AddSource *bool   `yaml:"add_source,omitempty"`

	MaxSizeMB  *int  `yaml:"max_size_mb,omitempty"`
	MaxBackups *int  `yaml:"max_backups,omitempty"`
	MaxAgeDays *int  `yaml:"max_age_days,omitempty"`
	Compress   *bool `yaml:"compress,omitempty"`
}

// DefaultConfig is quiet on stderr for the CLI. The dashboard owns the
// terminal, so it logs to a file.
func DefaultConfig(mode Mode) Config {
	level := "warn"
	sink := string(SinkStderr)
	format := string(FormatText)

	if mode == ModeDashboard {
		level = "info"
		sink = string(SinkFile)
	}

	addSource := false
	maxSizeMB := 10
	maxBackups := 3
	maxAgeDays := 14
	compress := true

	return Config{
		Level:      &level,
		Format:     &format,
		Sink:       &sink,
		AddSource:  &addSource,
		MaxSizeMB:  &maxSizeMB,
		MaxBackups: &maxBackups,
		MaxAgeDays: &maxAgeDays,
		Compress:   &compress,
	}
}

// WithEnv applies MICRORUN_LOG_* overrides.
func (c Config) WithEnv() Config {
	applyString := func(dst **string, env string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = &v
		}
	}
	applyInt := func(dst **int, env string) {
		raw := strings.TrimSpace(os.Getenv(env))
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return
		}
		*dst = &n
	}

	applyString(&c.Level, EnvLogLevel)
	applyString(&c.Format, EnvLogFormat)
	applyString(&c.Sink, EnvLogSink)
	applyString(&c.File, EnvLogFile)
	applyInt(&c.MaxSizeMB, EnvLogMaxSizeMB)
	applyInt(&c.MaxBackups, EnvLogMaxBackups)
	return c
}

// Merge returns base with every non-nil field of override applied.
func Merge(base, override Config) Config {
	out := base
	if override.Level != nil {
		out.Level = override.Level
	}
	if override.Format != nil {
		out.Format = override.Format
	}
	if override.Sink != nil {
		out.Sink = override.Sink
	}
	if override.File != nil {
		out.File = override.File
	}
	if override.AddSource != nil {
		out.AddSource = override.AddSource
	}
	if override.MaxSizeMB != nil {
		out.MaxSizeMB = override.MaxSizeMB
	}
	if override.MaxBackups != nil {
		out.MaxBackups = override.MaxBackups
	}
	if override.MaxAgeDays != nil {
		out.MaxAgeDays = override.MaxAgeDays
	}
	if override.Compress != nil {
		out.Compress = override.Compress
	}
	return out
}

// Normalize lower-cases enum fields, drops blanks and validates.
func (c Config) Normalize() (Config, error) {
	normalize := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.ToLower(strings.TrimSpace(*s))
		if v == "" {
			return nil
		}
		return &v
	}
	c.Level = normalize(c.Level)
	c.Format = normalize(c.Format)
	c.Sink = normalize(c.Sink)
	if c.File != nil {
		if v := strings.TrimSpace(*c.File); v == "" {
			c.File = nil
		} else {
			c.File = &v
		}
	}
	for _, n := range []**int{&c.MaxSizeMB, &c.MaxBackups, &c.MaxAgeDays} {
		if *n != nil && **n < 0 {
			zero := 0
			*n = &zero
		}
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.Level != nil {
		switch *c.Level {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.level: invalid %q", *c.Level)
		}
	}
	if c.Format != nil {
		switch Format(*c.Format) {
		case FormatText, FormatJSON:
		default:
			return fmt.Errorf("logging.format: invalid %q", *c.Format)
		}
	}
	if c.Sink != nil {
		switch Sink(*c.Sink) {
		case SinkStderr, SinkFile, SinkNone:
		default:
			return fmt.Errorf("logging.sink: invalid %q", *c.Sink)
		}
	}
	return nil
}

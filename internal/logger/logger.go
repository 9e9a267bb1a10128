// Package logger builds the agent's slog logger: level and format from
// config, optional ANSI color on the console, rotated file output via
// lumberjack.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the agent log destination and format.
// If Dir is set, output also goes to Dir/thermoagent.log with rotation.
type Config struct {
	Level      string // debug, info, warn, error (default info)
	Format     string // "json" or "text" (default text)
	Color      bool   // colorize console output, text format only
	Dir        string // base directory for the rotated log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer returns the rotating file writer, or nil when Dir is unset.
func (c Config) Writer() io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, "thermoagent.log"),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// Setup builds the logger and installs it as the slog default. The returned
// closer flushes the rotated file, if any.
func (c Config) Setup() (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}

	var out io.Writer = os.Stdout
	var closer io.Closer
	if fw := c.Writer(); fw != nil {
		out = io.MultiWriter(os.Stdout, fw)
		closer = fw
	}

	var handler slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		if c.Color && closer == nil {
			handler = NewColorTextHandler(out, opts, true)
		} else {
			handler = slog.NewTextHandler(out, opts)
		}
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l, closer, nil
}

// ParseLevel maps a level name to its slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

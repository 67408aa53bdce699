// Package logging builds the process slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits for the daemon.
const (
	FileName   = "nhatky.log"
	MaxSizeMB  = 10
	MaxBackups = 5
)

// Options configures Setup.
type Options struct {
	// Debug forces debug level. Otherwise NHATKY_LOG picks the level.
	Debug bool
	// Dir, when set, adds a size-rotated log file in Dir teed with Stderr.
	Dir string
	// JSON selects the JSON handler instead of text.
	JSON bool
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Level resolves the log level: debug flag > NHATKY_LOG > info.
func Level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("NHATKY_LOG")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger, installs it as the slog default and returns it with
// a close func for the log file (a no-op without Dir).
func Setup(opts Options) (*slog.Logger, func() error) {
	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }

	if opts.Dir != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator.Close
	}

	hopts := &slog.HandlerOptions{Level: Level(opts.Debug)}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer
}

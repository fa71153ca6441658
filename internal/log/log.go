package log

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control logger construction.
type Options struct {
	Debug   bool
	Verbose bool
	// File, when set, receives Info and above as JSON, independent of the
	// stderr level. Rotated by size.
	File string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Setup configures the global slog.Logger: Debug with Debug, Info with
// Verbose, Warn otherwise. It returns a closer for the optional log file.
func Setup(o Options) (*slog.Logger, func() error) {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelInfo
	}
	if o.Debug {
		level = slog.LevelDebug
	}
	stderr := o.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var h slog.Handler = slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	closer := func() error { return nil }
	if o.File != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		fileLevel := slog.LevelInfo
		if o.Debug {
			fileLevel = slog.LevelDebug
		}
		h = fanout{h, slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: fileLevel})}
		closer = lj.Close
	}

	l := slog.New(h)
	slog.SetDefault(l)
	return l, closer
}

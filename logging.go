package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type logFlags struct {
	level  *string
	format *string
	file   *string
}

func registerLogFlags(fs *flag.FlagSet) *logFlags {
	return &logFlags{
		level:  fs.String("log-level", "info", "debug, info, warn or error"),
		format: fs.String("log-format", "text", "text or json"),
		file:   fs.String("log-file", "", "write logs to a rotated file instead of stderr"),
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// logger builds the configured logger and returns the writer behind it.
// Logs go to fallback unless a log file is set, in which case the file is
// rotated and must be closed by the caller.
func (lf *logFlags) logger(fallback io.Writer) (*slog.Logger, io.WriteCloser, error) {
	level, err := parseLevel(*lf.level)
	if err != nil {
		return nil, nil, err
	}
	var w io.WriteCloser = nopCloser{fallback}
	if *lf.file != "" {
		w = &lumberjack.Logger{
			Filename:   *lf.file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
	}
	return newLogger(w, level, *lf.format), w, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

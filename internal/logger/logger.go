// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger so that the rest of the code base only depends on
// this package for logging.
type Logger struct {
	*slog.Logger
}

// New returns a Logger that writes to STDERR with the given log level.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger returns a Logger that writes to the given writer with the given log level.
func NewLogger(level slog.Level, output io.Writer) *Logger {
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// Err wraps an error into a slog.Attr for uniform structured error logging.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

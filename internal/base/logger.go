// Copyright 2026 The Basalt Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger defines an interface for writing log messages.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger struct{}

// Infof implements the Logger.Infof interface.
func (DefaultLogger) Infof(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}

// Errorf implements the Logger.Errorf interface.
func (DefaultLogger) Errorf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}

// Fatalf implements the Logger.Fatalf interface.
func (DefaultLogger) Fatalf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// NoopLogger discards Infof and Errorf messages. Fatalf still writes to
// stderr and exits so that genuinely fatal conditions are not silently
// dropped.
type NoopLogger struct{}

// Infof implements the Logger.Infof interface.
func (NoopLogger) Infof(format string, args ...interface{}) {}

// Errorf implements the Logger.Errorf interface.
func (NoopLogger) Errorf(format string, args ...interface{}) {}

// Fatalf implements the Logger.Fatalf interface.
func (NoopLogger) Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// BufferedLogger accumulates Infof lines in memory and emits them to the
// wrapped logger in one batch when flushed. Long-running jobs buffer their
// progress lines so that a job's output appears contiguously in the log even
// when several jobs run concurrently. Errorf and Fatalf pass through
// unbuffered.
type BufferedLogger struct {
	wrapped Logger

	mu    sync.Mutex
	lines []string
}

// NewBufferedLogger wraps logger with an in-memory line buffer.
func NewBufferedLogger(logger Logger) *BufferedLogger {
	return &BufferedLogger{wrapped: logger}
}

// Infof implements the Logger.Infof interface.
func (b *BufferedLogger) Infof(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

// Errorf implements the Logger.Errorf interface.
func (b *BufferedLogger) Errorf(format string, args ...interface{}) {
	b.wrapped.Errorf(format, args...)
}

// Fatalf implements the Logger.Fatalf interface.
func (b *BufferedLogger) Fatalf(format string, args ...interface{}) {
	b.wrapped.Fatalf(format, args...)
}

// Flush emits the buffered lines to the wrapped logger and resets the
// buffer.
func (b *BufferedLogger) Flush() {
	b.mu.Lock()
	lines := b.lines
	b.lines = nil
	b.mu.Unlock()
	if len(lines) > 0 {
		b.wrapped.Infof("%s", strings.Join(lines, "\n"))
	}
}

// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package errlog writes the server's append-only error log, a flat
// grep-able stream in the same spirit as original_source/errorLogger.c's
// logError: one timestamped, blank-line-separated record per failure.
// Exact formatting is not part of any external contract (spec §6).
package errlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Log is a concurrency-safe append-only writer over a single file.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the error log at path for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Log{file: f}, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}

// Record appends one timestamped record followed by a blank line.
func (l *Log) Record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "%s: %s\n\n", time.Now().Format(time.RFC3339), msg)
}

// Write implements zapcore.WriteSyncer so a Log can be plugged directly into
// a zap core: every encoded log entry routed here becomes one Record.
func (l *Log) Write(p []byte) (int, error) {
	l.Record(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Sync is a no-op; every Record already issues its own write.
func (l *Log) Sync() error { return nil }

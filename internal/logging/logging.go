// Copyright 2025 JC-Lab
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package logging builds the process-wide structured logger. It replaces
// the teacher's bare log.Printf with go.uber.org/zap, keeping the same
// bracketed-component convention ("lobby", "game", "acceptor") as fields
// rather than string prefixes.
package logging

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorSink receives every Error-or-above log entry in addition to stdout,
// satisfied by *errlog.Log.
type ErrorSink interface {
	zapcore.WriteSyncer
}

// New builds a logger that pretty-prints to stdout when stdout is an
// interactive terminal, and emits JSON otherwise — the common Go idiom for
// picking an encoding based on the attached terminal (github.com/mattn/go-isatty).
// If sink is non-nil, every Error-level-or-above entry is additionally
// written there (the structured analogue of original_source/errorLogger.c's
// dual stderr+file echo).
func New(sink ErrorSink) *zap.Logger {
	var encoder zapcore.Encoder
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if isatty.IsTerminal(os.Stdout.Fd()) {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zap.InfoLevel),
	}
	if sink != nil {
		cores = append(cores, zapcore.NewCore(encoder, sink, zap.ErrorLevel))
	}
	return zap.New(zapcore.NewTee(cores...))
}

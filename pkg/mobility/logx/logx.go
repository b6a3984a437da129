// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logx routes Beam's context-aware log package to a zap logger, so
// library code and DoFns log with log.Infof(ctx, ...) while the binary picks
// the encoding and level.
package logx

import (
	"context"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZap builds the production zap logger. verbose lowers the level to
// debug.
func NewZap(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

type zapLogger struct {
	l *zap.Logger
}

// New returns a log.Logger that writes to l.
func New(l *zap.Logger) log.Logger {
	return &zapLogger{l: l}
}

// Install builds a zap logger and makes it Beam's global logger. The
// returned logger should be synced before exit.
func Install(verbose bool) (*zap.Logger, error) {
	l, err := NewZap(verbose)
	if err != nil {
		return nil, err
	}
	log.SetLogger(New(l))
	return l, nil
}

func (z *zapLogger) Log(_ context.Context, sev log.Severity, calldepth int, msg string) {
	l := z.l.WithOptions(zap.AddCallerSkip(calldepth))
	if ce := l.Check(level(sev), msg); ce != nil {
		ce.Write()
	}
}

// level maps Beam severities onto zap levels. Fatal maps to error because
// Beam's Fatal and Exit variants panic or exit on their own.
func level(sev log.Severity) zapcore.Level {
	switch sev {
	case log.SevDebug:
		return zapcore.DebugLevel
	case log.SevWarn:
		return zapcore.WarnLevel
	case log.SevError, log.SevFatal:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

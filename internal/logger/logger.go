// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the leveled, structured logging distfs's
// subsystems use. It wraps log/slog the way the teacher's internal/logger
// package does (custom severity levels, JSON or text handler, optional
// rotating file sink), minus the cobra/viper config binding the teacher
// wires it to — distfs's logger is configured by a plain Options struct
// handed to Init, never by flags or a config file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, distinct from slog's default Debug/Info/Warn/Error so a
// TRACE level below Debug and an OFF level above Error are representable.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = -4
	LevelInfo  slog.Level = 0
	LevelWarn  slog.Level = 4
	LevelError slog.Level = 8
	LevelOff   slog.Level = 12
)

// Severity name constants accepted by SetSeverity.
const (
	Trace   = "TRACE"
	Debug   = "DEBUG"
	Info    = "INFO"
	Warning = "WARNING"
	Error   = "ERROR"
	Off     = "OFF"
)

// RotateOptions configures the optional file sink, mirroring lumberjack's
// own knobs (the teacher's exact rotation dependency).
type RotateOptions struct {
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Options configures the package-wide default logger.
type Options struct {
	// Format is "text" or "json"; anything else defaults to "json".
	Format string
	// Severity is one of the named levels above; defaults to INFO.
	Severity string
	// FilePath, if non-empty, routes output to a rotating file instead of
	// stderr.
	FilePath string
	Rotate   RotateOptions
	// Prefix is prepended to every message, matching the teacher's
	// per-subsystem "Subsystem: message" convention.
	Prefix string
}

type factory struct {
	mu       sync.Mutex
	format   string
	prefix   string
	level    *slog.LevelVar
	file     *lumberjack.Logger
	sysWriter io.Writer
}

var (
	defaultFactory = &factory{format: "json", level: programLevel(Info)}
	defaultLogger  = slog.New(defaultFactory.handler(os.Stderr))
)

func programLevel(sev string) *slog.LevelVar {
	v := new(slog.LevelVar)
	setSeverity(sev, v)
	return v
}

// Init (re)configures the package-wide default logger.
func Init(opts Options) error {
	f := &factory{
		format: opts.Format,
		prefix: opts.Prefix,
		level:  new(slog.LevelVar),
	}
	if f.format == "" {
		f.format = "json"
	}
	setSeverity(opts.Severity, f.level)

	var out io.Writer = os.Stderr
	if opts.FilePath != "" {
		f.file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.Rotate.MaxSizeMB,
			MaxBackups: opts.Rotate.MaxBackups,
			Compress:   opts.Rotate.Compress,
		}
		out = f.file
	}

	defaultFactory = f
	defaultLogger = slog.New(f.handler(out))
	return nil
}

// SetFormat switches the active handler's format ("text" or "json")
// without otherwise disturbing configuration.
func SetFormat(format string) {
	defaultFactory.mu.Lock()
	defaultFactory.format = format
	defaultFactory.mu.Unlock()
	defaultLogger = slog.New(defaultFactory.handler(currentOutput()))
}

func currentOutput() io.Writer {
	if defaultFactory.file != nil {
		return defaultFactory.file
	}
	return os.Stderr
}

func setSeverity(sev string, v *slog.LevelVar) {
	switch strings.ToUpper(sev) {
	case Trace:
		v.Set(LevelTrace)
	case Debug:
		v.Set(LevelDebug)
	case Warning:
		v.Set(LevelWarn)
	case Error:
		v.Set(LevelError)
	case Off:
		v.Set(LevelOff)
	default:
		v.Set(LevelInfo)
	}
}

func (f *factory) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: f.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
			}
			if a.Key == slog.MessageKey {
				a.Key = "message"
			}
			if a.Key == slog.TimeKey {
				a.Key = "time"
			}
			return a
		},
	}
	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return Trace
	case l < LevelInfo:
		return Debug
	case l < LevelWarn:
		return Info
	case l < LevelError:
		return Warning
	default:
		return Error
	}
}

func logf(level slog.Level, format string, args ...any) {
	msg := defaultFactory.prefix + fmt.Sprintf(format, args...)
	defaultLogger.Log(context.Background(), level, msg)
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

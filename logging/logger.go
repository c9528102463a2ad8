// Copyright 2023 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging is a small structured logging helper based on [log/slog].
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// contextKey is a private string type to prevent collisions in the context map.
type contextKey string

// loggerKey points to the value in the context where the logger is stored.
const loggerKey = contextKey("logger")

// defaultLoggerOnce writes to stderr at the "Info" level. It is initialized
// once when called the first time.
var defaultLoggerOnce = sync.OnceValue(func() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo, formatFor(os.Stderr), false)
})

// New creates a new logger in the specified format that writes to w at the
// provided level.
//
// If debug is true, the level is set to the lowest possible value and the
// output includes source information.
func New(w io.Writer, level slog.Level, format Format, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if debug {
		opts.AddSource = true
		opts.Level = slog.Level(math.MinInt)
	}

	switch format {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts))
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts))
	default:
		panic(fmt.Sprintf("unknown log format %q", format))
	}
}

// NewFromEnv creates a logger configured from the environment. Each variable
// is looked up with the prefix first, then without it:
//
//   - LOG_LEVEL: debug, info, warn, or error. It panics on other values.
//   - LOG_FORMAT: json or text. It panics on other values. When unset, text is
//     used if the target is a terminal and json otherwise.
//   - LOG_DEBUG: enables the most detailed logging. It panics if the value is
//     not a valid boolean.
func NewFromEnv(envPrefix string, opts ...Option) *slog.Logger {
	o := &options{
		level:  slog.LevelInfo,
		target: os.Stderr,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		o = opt(o)
	}
	if o.format == "" {
		o.format = formatFor(o.target)
	}

	if key, val := multiGetenv(o.getenv, envPrefix+"LOG_LEVEL", "LOG_LEVEL"); val != "" {
		level, err := LookupLevel(val)
		if err != nil {
			panic(fmt.Sprintf("log level: invalid value for %s: %s", key, err))
		}
		o.level = level
	}

	if key, val := multiGetenv(o.getenv, envPrefix+"LOG_FORMAT", "LOG_FORMAT"); val != "" {
		format, err := LookupFormat(val)
		if err != nil {
			panic(fmt.Sprintf("log format: invalid value for %s: %s", key, err))
		}
		o.format = format
	}

	if key, val := multiGetenv(o.getenv, envPrefix+"LOG_DEBUG", "LOG_DEBUG"); val != "" {
		debug, err := strconv.ParseBool(val)
		if err != nil {
			panic(fmt.Sprintf("log debug: invalid value for %s: %s", key, err))
		}
		o.debug = debug
	}

	return New(o.target, o.level, o.format, o.debug)
}

type options struct {
	level  slog.Level
	format Format
	debug  bool
	target io.Writer
	getenv func(string) string
}

// Option is a configuration function for [NewFromEnv].
type Option func(o *options) *options

// WithDefaultLevel sets the level used when no variable is set.
func WithDefaultLevel(l slog.Level) Option {
	return func(o *options) *options {
		o.level = l
		return o
	}
}

// WithDefaultFormat sets the format used when no variable is set.
func WithDefaultFormat(f Format) Option {
	return func(o *options) *options {
		o.format = f
		return o
	}
}

// WithTarget sets where logs are written. The default is [os.Stderr].
func WithTarget(w io.Writer) Option {
	return func(o *options) *options {
		o.target = w
		return o
	}
}

// WithGetenv overrides the function to get envvars. It's primarily used for
// testing.
func WithGetenv(f func(string) string) Option {
	return func(o *options) *options {
		o.getenv = f
		return o
	}
}

// multiGetenv returns the first non-empty variable among ss, along with its
// name. If none is set, it returns the first name and an empty value.
func multiGetenv(f func(string) string, ss ...string) (string, string) {
	if len(ss) == 0 {
		return "", ""
	}
	for _, s := range ss {
		if v := strings.TrimSpace(f(s)); v != "" {
			return s, v
		}
	}
	return ss[0], ""
}

// formatFor picks text output for terminals and json for everything else.
func formatFor(w io.Writer) Format {
	if f, ok := w.(*os.File); ok {
		if fd := f.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return FormatText
		}
	}
	return FormatJSON
}

// DefaultLogger returns the process-wide default logger.
func DefaultLogger() *slog.Logger {
	return defaultLoggerOnce()
}

// WithLogger creates a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in the context. If no such logger
// exists, the default logger is returned.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

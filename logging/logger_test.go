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

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/abcxyz/chromatest/testutil"
)

func TestContext(t *testing.T) {
	t.Parallel()

	logger1 := New(&bytes.Buffer{}, slog.LevelInfo, FormatJSON, false)
	logger2 := New(&bytes.Buffer{}, slog.LevelInfo, FormatText, false)

	checkFromContext(context.Background(), t, DefaultLogger())

	ctx := WithLogger(context.Background(), logger1)
	checkFromContext(ctx, t, logger1)

	ctx = WithLogger(ctx, logger2)
	checkFromContext(ctx, t, logger2)
}

func checkFromContext(ctx context.Context, tb testing.TB, want *slog.Logger) {
	tb.Helper()

	if got := FromContext(ctx); want != got {
		tb.Errorf("unexpected logger in context. got: %v, want: %v", got, want)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, FormatJSON, false)
		logger.Debug("hidden")
		logger.Info("shown", "port", "8000")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if got, want := len(lines), 1; got != want {
			t.Fatalf("got %d lines, want %d: %q", got, want, buf.String())
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatal(err)
		}
		if got, want := entry["msg"], "shown"; got != want {
			t.Errorf("msg got %q, want %q", got, want)
		}
		if got, want := entry["port"], "8000"; got != want {
			t.Errorf("port got %q, want %q", got, want)
		}
	})

	t.Run("debug_enables_everything", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := New(&buf, slog.LevelError, FormatText, true)
		logger.Debug("very detailed")
		if !strings.Contains(buf.String(), "very detailed") {
			t.Errorf("expected debug output, got %q", buf.String())
		}
	})

	t.Run("unknown_format_panics", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		New(&bytes.Buffer{}, slog.LevelInfo, Format("xml"), false)
	})
}

func TestNewFromEnv(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		env       map[string]string
		wantDebug bool
		wantJSON  bool
	}{
		{
			name:     "defaults",
			env:      map[string]string{},
			wantJSON: true,
		},
		{
			name: "prefixed_wins",
			env: map[string]string{
				"CHROMA_LOG_LEVEL": "debug",
				"LOG_LEVEL":        "error",
			},
			wantDebug: true,
			wantJSON:  true,
		},
		{
			name: "unprefixed_fallback",
			env: map[string]string{
				"LOG_LEVEL":  "DEBUG",
				"LOG_FORMAT": "text",
			},
			wantDebug: true,
		},
		{
			name: "debug_flag",
			env: map[string]string{
				"LOG_DEBUG": "true",
			},
			wantDebug: true,
			wantJSON:  true,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewFromEnv("CHROMA_",
				WithTarget(&buf),
				WithGetenv(func(k string) string { return tc.env[k] }))

			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tc.wantDebug {
				t.Errorf("debug enabled got %t, want %t", got, tc.wantDebug)
			}

			logger.Warn("hello")
			isJSON := strings.HasPrefix(buf.String(), "{")
			if isJSON != tc.wantJSON {
				t.Errorf("json output got %t, want %t: %q", isJSON, tc.wantJSON, buf.String())
			}
		})
	}
}

func TestNewFromEnv_InvalidLevelPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic")
		}
		msg, ok := r.(string)
		if !ok {
			t.Fatalf("got %T, want string", r)
		}
		if diff := testutil.DiffErrString(errors.New(msg), "invalid value for LOG_LEVEL"); diff != "" {
			t.Error(diff)
		}
	}()

	NewFromEnv("",
		WithTarget(&bytes.Buffer{}),
		WithGetenv(func(k string) string {
			if k == "LOG_LEVEL" {
				return "loud"
			}
			return ""
		}))
}

func TestLookupLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    slog.Level
		wantErr string
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "nope", wantErr: `no such level "nope"`},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := LookupLevel(tc.in)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLookupFormat(t *testing.T) {
	t.Parallel()

	if got, err := LookupFormat("JSON"); err != nil || got != FormatJSON {
		t.Errorf("LookupFormat(JSON) got (%q, %v), want (%q, nil)", got, err, FormatJSON)
	}
	_, err := LookupFormat("yaml")
	if diff := testutil.DiffErrString(err, `no such format "yaml"`); diff != "" {
		t.Error(diff)
	}
}

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
	"fmt"
	"log/slog"
	"strings"
)

// Format is the output format of a logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LookupFormat parses s into a [Format]. Matching is case-insensitive.
func LookupFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("no such format %q, valid formats are %q", s, []Format{FormatJSON, FormatText})
	}
}

// LookupLevel parses s into a [slog.Level]. Besides the names slog knows
// ("debug", "info", "warn", "error") it accepts "warning".
func LookupLevel(s string) (slog.Level, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "warning" {
		v = "warn"
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("no such level %q: %w", s, err)
	}
	return l, nil
}

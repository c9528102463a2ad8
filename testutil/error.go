// Copyright 2022 The Authors (see AUTHORS file)
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

// Package testutil contains helpers shared by the tests in this module.
package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// DiffErrString returns an empty string if got's message contains want, or if
// both are empty. Otherwise it describes the mismatch.
func DiffErrString(got error, want string) string {
	switch {
	case want == "" && got == nil:
		return ""
	case want == "":
		return fmt.Sprintf("got error %q but want <nil>", got.Error())
	case got == nil:
		return fmt.Sprintf("got error <nil> but want an error containing %q", want)
	}

	msg := got.Error()
	if strings.Contains(msg, want) {
		return ""
	}
	out := fmt.Sprintf("got error %q but want an error containing %q", msg, want)

	// Long or multi-line messages are hard to compare by eye.
	const diffLen = 20
	if len(want) >= diffLen && len(msg) >= diffLen || strings.Contains(want, "\n") && strings.Contains(msg, "\n") {
		out += fmt.Sprintf("; diff was (-got,+want):\n%s", cmp.Diff(msg, want))
	}
	return out
}

// DiffErrIs returns an empty string if errors.Is(got, want) holds, or if both
// are nil. Otherwise it describes the mismatch.
func DiffErrIs(got, want error) string {
	switch {
	case want == nil && got == nil:
		return ""
	case want == nil:
		return fmt.Sprintf("got error %q but want <nil>", got.Error())
	case got == nil:
		return fmt.Sprintf("got error <nil> but want %q", want.Error())
	case !errors.Is(got, want):
		return fmt.Sprintf("got error %q but want one that wraps %q", got.Error(), want.Error())
	}
	return ""
}

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

package testutil

import (
	"os"
	"strconv"
	"testing"
)

// IntegrationEnvVar gates tests that need a docker daemon.
const IntegrationEnvVar = "TEST_INTEGRATION"

// IsIntegration reports whether TEST_INTEGRATION is set to a true value.
func IsIntegration(tb testing.TB) bool {
	tb.Helper()

	v := os.Getenv(IntegrationEnvVar)
	if v == "" {
		return false
	}
	isInteg, err := strconv.ParseBool(v)
	if err != nil {
		tb.Fatalf("failed to parse %s: %v", IntegrationEnvVar, err)
	}
	return isInteg
}

// SkipIfNotIntegration skips the test if [IsIntegration] returns false.
func SkipIfNotIntegration(tb testing.TB) {
	tb.Helper()

	if !IsIntegration(tb) {
		tb.Skipf("Not integration test, set %s=true to run", IntegrationEnvVar)
	}
}

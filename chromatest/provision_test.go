// Copyright 2024 The Authors (see AUTHORS file)
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

package chromatest

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/abcxyz/chromatest/logging"
	"github.com/abcxyz/chromatest/testutil"
	"github.com/google/go-cmp/cmp"
)

func TestNewProvisioner(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name           string
		cfg            *Config
		want           provisioner
		wantInjectable bool
	}{
		{
			name: "prebuilt",
			cfg: &Config{
				PrebuiltImage: "chromadb/chroma:0.5.0",
				BuildContext:  ".",
				Dockerfile:    "Dockerfile",
				ImageName:     "chromadb-test",
			},
			want: &prebuiltImage{ref: "chromadb/chroma:0.5.0"},
		},
		{
			name: "build",
			cfg:  defaultConfig(),
			want: &dockerfileBuild{
				contextDir: ".",
				dockerfile: "Dockerfile",
				name:       "chromadb-test",
			},
			wantInjectable: true,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := newProvisioner(tc.cfg)
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(prebuiltImage{}, dockerfileBuild{})); diff != "" {
				t.Errorf("newProvisioner (-want, +got):\n%s", diff)
			}
			if got, want := got.SupportsFileInjection(), tc.wantInjectable; got != want {
				t.Errorf("SupportsFileInjection() got %t, want %t", got, want)
			}
		})
	}
}

func TestPrebuiltImage_Provision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := logging.TestLogger(t)

	eng := &fakeEngine{}
	p := &prebuiltImage{ref: "chromadb/chroma:0.5.0"}
	got, err := p.Provision(ctx, eng, logger, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if want := "chromadb/chroma:0.5.0"; got != want {
		t.Errorf("image got %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"ensure"}, eng.callLog()); diff != "" {
		t.Errorf("calls (-want, +got):\n%s", diff)
	}

	failing := &fakeEngine{ensureErr: fmt.Errorf("pull access denied")}
	_, err = p.Provision(ctx, failing, logger, io.Discard)
	if diff := testutil.DiffErrString(err, `failed to provision pre-built image "chromadb/chroma:0.5.0": pull access denied`); diff != "" {
		t.Error(diff)
	}
}

func TestDockerfileBuild_Provision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logger := logging.TestLogger(t)

	eng := &fakeEngine{}
	b := &dockerfileBuild{contextDir: "../..", dockerfile: "Dockerfile", name: "chromadb-test"}
	got, err := b.Provision(ctx, eng, logger, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if want := "chromadb-test"; got != want {
		t.Errorf("image got %q, want %q", got, want)
	}
	want := []*buildRequest{{
		Name:       "chromadb-test",
		ContextDir: "../..",
		Dockerfile: "Dockerfile",
		Output:     io.Discard,
	}}
	if diff := cmp.Diff(want, eng.built, cmp.Comparer(func(a, b io.Writer) bool { return a == b })); diff != "" {
		t.Errorf("build requests (-want, +got):\n%s", diff)
	}

	failing := &fakeEngine{buildErr: fmt.Errorf("COPY failed")}
	_, err = b.Provision(ctx, failing, logger, io.Discard)
	if diff := testutil.DiffErrString(err, `failed to build image from "../..": COPY failed`); diff != "" {
		t.Error(diff)
	}
}

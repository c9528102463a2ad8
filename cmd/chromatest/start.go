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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/abcxyz/chromatest/chromatest"
	"github.com/abcxyz/chromatest/cli"
	"github.com/abcxyz/chromatest/logging"
	"gopkg.in/yaml.v3"
)

var _ cli.FlagCommand = (*StartCommand)(nil)

// startFunc matches [chromatest.Start].
type startFunc func(ctx context.Context, cfg *chromatest.Config, opts ...chromatest.Option) (*chromatest.ConnInfo, error)

type StartCommand struct {
	cli.BaseCommand

	// start is replaced in tests.
	start startFunc

	flags startFlags
}

type startFlags struct {
	auth        string
	format      string
	buildOutput bool
	timeout     time.Duration
}

func (c *StartCommand) Desc() string {
	return "Start a Chroma server and wait for a signal"
}

func (c *StartCommand) Help() string {
	return strings.Trim(`
Usage: chromatest start [options]

  Starts a Chroma server container, waits until it accepts connections, and
  prints how to reach it. The container is removed on SIGINT or SIGTERM.

  The image is pulled from PREBUILT_CHROMADB_IMAGE when set. Otherwise it is
  built from CHROMADB_DOCKERFILE in CHROMADB_BUILD_CONTEXT and tagged
  CHROMADB_IMAGE_NAME, and basic auth credentials are copied into it.

      $ chromatest start -auth token -format json

`+c.Flags().Help(), "\n")
}

func (c *StartCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()

	f := set.NewSection("CHROMA OPTIONS")

	f.EnumVar(&cli.EnumVar{
		Name:    "auth",
		Aliases: []string{"a"},
		Default: chromatest.AuthNone.String(),
		EnvVar:  "CHROMATEST_AUTH",
		Values:  authTypeNames(),
		Target:  &c.flags.auth,
		Usage:   "Authentication mode of the server.",
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "timeout",
		Example: "30s",
		Default: chromatest.DefaultStartupTimeout,
		EnvVar:  "CHROMATEST_STARTUP_TIMEOUT",
		Target:  &c.flags.timeout,
		Usage:   "How long to wait for the server to accept connections.",
	})

	f.BoolVar(&cli.BoolVar{
		Name:   "build-output",
		Target: &c.flags.buildOutput,
		Usage:  "Stream docker build output to stderr.",
	})

	f = set.NewSection("OUTPUT OPTIONS")

	f.EnumVar(&cli.EnumVar{
		Name:    "format",
		Aliases: []string{"f"},
		Default: "text",
		Values:  []string{"text", "json", "yaml"},
		Target:  &c.flags.format,
		Usage:   "Format of the connection details.",
	})

	set.AfterParse(func(existingErr error) error {
		if c.flags.timeout <= 0 {
			return fmt.Errorf("-timeout must be positive, got %s", c.flags.timeout)
		}
		return nil
	})

	return set
}

func (c *StartCommand) Run(ctx context.Context, args []string) (retErr error) {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if args := f.Args(); len(args) > 0 {
		return fmt.Errorf("expected no arguments, got %q", args)
	}

	authType, err := chromatest.ParseAuthType(c.flags.auth)
	if err != nil {
		return fmt.Errorf("invalid -auth: %w", err)
	}

	cfg, err := chromatest.NewConfig(ctx, lookupFunc(c.LookupEnv))
	if err != nil {
		return err //nolint:wrapcheck // Already descriptive
	}

	opts := []chromatest.Option{
		chromatest.WithAuthType(authType),
		chromatest.WithStartupTimeout(c.flags.timeout),
	}
	if c.flags.buildOutput {
		opts = append(opts, chromatest.WithBuildOutput(c.Stderr()))
	}

	start := c.start
	if start == nil {
		start = chromatest.Start
	}

	ci, err := start(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to start chroma: %w", err)
	}
	defer func() {
		if err := ci.Close(); err != nil {
			retErr = errors.Join(retErr, err)
		}
	}()

	out := newOutput(ci)
	if err := render(c.Stdout(), out, c.flags.format); err != nil {
		return err
	}

	<-ctx.Done()
	logging.FromContext(ctx).InfoContext(context.WithoutCancel(ctx),
		"shutting down, removing container", "id", out.ContainerID)
	return nil
}

// output is the printed form of [chromatest.ConnInfo].
type output struct {
	URL         string            `json:"url" yaml:"url"`
	Host        string            `json:"host" yaml:"host"`
	Port        string            `json:"port" yaml:"port"`
	AuthType    string            `json:"auth_type" yaml:"auth_type"`
	ContainerID string            `json:"container_id,omitempty" yaml:"container_id,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

func newOutput(ci *chromatest.ConnInfo) *output {
	out := &output{
		URL:      ci.URL,
		Host:     ci.Host,
		Port:     ci.Port,
		AuthType: ci.AuthType.String(),
	}
	if h := ci.AuthHeaders(); len(h) > 0 {
		out.Headers = h
	}
	if ci.Container != nil {
		out.ContainerID = ci.Container.ID()
	}
	return out
}

func render(w io.Writer, out *output, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to flush yaml: %w", err)
		}
	default:
		fmt.Fprintf(w, "Chroma is listening at %s\n", out.URL)
		fmt.Fprintf(w, "  host:      %s\n", out.Host)
		fmt.Fprintf(w, "  port:      %s\n", out.Port)
		fmt.Fprintf(w, "  auth:      %s\n", out.AuthType)
		if out.ContainerID != "" {
			fmt.Fprintf(w, "  container: %s\n", out.ContainerID)
		}
		for _, k := range sortedKeys(out.Headers) {
			fmt.Fprintf(w, "  header:    %s: %s\n", k, out.Headers[k])
		}
		fmt.Fprintln(w, "Press Ctrl-C to stop and remove the container.")
	}
	return nil
}

func authTypeNames() []string {
	types := chromatest.AuthTypes()
	names := make([]string, 0, len(types))
	for _, a := range types {
		names = append(names, a.String())
	}
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

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
	"fmt"
	"strings"

	"github.com/abcxyz/chromatest/chromatest"
	"github.com/abcxyz/chromatest/cli"
)

var _ cli.FlagCommand = (*EnvCommand)(nil)

type EnvCommand struct {
	cli.BaseCommand

	flagAuth   string
	flagFormat string
}

func (c *EnvCommand) Desc() string {
	return "Print the server environment for an auth mode"
}

func (c *EnvCommand) Help() string {
	return strings.Trim(`
Usage: chromatest env [options]

  Prints the environment variables a Chroma server needs for the given auth
  mode. The default format can be used as a docker env file.

      $ chromatest env -auth basic > chroma.env
      $ docker run --env-file chroma.env chromadb/chroma

`+c.Flags().Help(), "\n")
}

func (c *EnvCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()

	f := set.NewSection("OPTIONS")

	f.EnumVar(&cli.EnumVar{
		Name:    "auth",
		Aliases: []string{"a"},
		Default: chromatest.AuthNone.String(),
		EnvVar:  "CHROMATEST_AUTH",
		Values:  authTypeNames(),
		Target:  &c.flagAuth,
		Usage:   "Authentication mode of the server.",
	})

	f.EnumVar(&cli.EnumVar{
		Name:    "format",
		Aliases: []string{"f"},
		Default: "env",
		Values:  []string{"env", "json"},
		Target:  &c.flagFormat,
		Usage:   "Output format.",
	})

	return set
}

func (c *EnvCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if args := f.Args(); len(args) > 0 {
		return fmt.Errorf("expected no arguments, got %q", args)
	}

	authType, err := chromatest.ParseAuthType(c.flagAuth)
	if err != nil {
		return fmt.Errorf("invalid -auth: %w", err)
	}

	env, err := chromatest.Environment(authType)
	if err != nil {
		return fmt.Errorf("failed to compute environment: %w", err)
	}

	if c.flagFormat == "json" {
		enc := json.NewEncoder(c.Stdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}

	for _, kv := range chromatest.EnvironmentList(env) {
		fmt.Fprintln(c.Stdout(), kv)
	}
	return nil
}

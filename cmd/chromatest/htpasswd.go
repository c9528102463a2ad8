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
	"fmt"
	"strings"

	"github.com/abcxyz/chromatest/chromatest"
	"github.com/abcxyz/chromatest/cli"
)

var _ cli.FlagCommand = (*HTPasswdCommand)(nil)

type HTPasswdCommand struct {
	cli.BaseCommand

	flagUsername string
	flagPassword string
}

func (c *HTPasswdCommand) Desc() string {
	return "Print a bcrypt htpasswd entry"
}

func (c *HTPasswdCommand) Help() string {
	return strings.Trim(`
Usage: chromatest htpasswd [options]

  Prints a single htpasswd line for the given user, hashed with bcrypt. Mount
  the output at `+chromatest.CredentialsPath+` to run a pre-built image with
  basic auth.

      $ chromatest htpasswd > test.htpasswd

`+c.Flags().Help(), "\n")
}

func (c *HTPasswdCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()

	f := set.NewSection("OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "username",
		Aliases: []string{"u"},
		Example: "alice",
		Default: chromatest.BasicAuthUsername,
		Target:  &c.flagUsername,
		Usage:   "Name of the user.",
	})

	f.StringVar(&cli.StringVar{
		Name:    "password",
		Aliases: []string{"p"},
		Example: "s3cret",
		Default: chromatest.BasicAuthPassword,
		EnvVar:  "CHROMATEST_PASSWORD",
		Target:  &c.flagPassword,
		Usage:   "Password of the user.",
	})

	set.AfterParse(func(existingErr error) error {
		if c.flagUsername == "" {
			return fmt.Errorf("-username is required")
		}
		if strings.Contains(c.flagUsername, ":") {
			return fmt.Errorf("-username cannot contain a colon")
		}
		return nil
	})

	return set
}

func (c *HTPasswdCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if args := f.Args(); len(args) > 0 {
		return fmt.Errorf("expected no arguments, got %q", args)
	}

	line, err := chromatest.HTPasswd(c.flagUsername, c.flagPassword)
	if err != nil {
		return err //nolint:wrapcheck // Already descriptive
	}
	if _, err := fmt.Fprintf(c.Stdout(), "%s\n", line); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

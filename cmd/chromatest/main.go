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

// Command chromatest runs a disposable Chroma server for local development and
// tests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abcxyz/chromatest/cli"
	"github.com/abcxyz/chromatest/internal/version"
	"github.com/abcxyz/chromatest/logging"
)

var rootCmd = func() *cli.RootCommand {
	return &cli.RootCommand{
		Name:    version.Name,
		Version: version.HumanVersion,
		Commands: map[string]cli.CommandFactory{
			"start": func() cli.Command {
				return &StartCommand{}
			},
			"env": func() cli.Command {
				return &EnvCommand{}
			},
			"htpasswd": func() cli.Command {
				return &HTPasswdCommand{}
			},
		},
	}
}

func main() {
	ctx, done := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer done()

	if err := realMain(ctx); err != nil {
		done()
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func realMain(ctx context.Context) error {
	logger := logging.NewFromEnv("CHROMATEST_")
	ctx = logging.WithLogger(ctx, logger)

	cmd := rootCmd()

	// Exits when invoked by the shell for completions.
	cmd.Completer().Complete(cmd.Name)

	return cmd.Run(ctx, os.Args[1:]) //nolint:wrapcheck // Want passthrough
}

// lookupFunc adapts a [cli.LookupEnvFunc] to an envconfig lookuper.
type lookupFunc cli.LookupEnvFunc

func (f lookupFunc) Lookup(key string) (string, bool) {
	return f(key)
}

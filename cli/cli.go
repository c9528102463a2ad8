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

// Package cli is a small command framework for the chromatest binary. A
// [RootCommand] dispatches to lazily constructed subcommands, each of which
// declares its flags in named sections of a [FlagSet]:
//
//	var rootCmd = func() cli.Command {
//	  return &cli.RootCommand{
//	    Name:    "chromatest",
//	    Version: "v0.1.0",
//	    Commands: map[string]cli.CommandFactory{
//	      "start": func() cli.Command {
//	        return &StartCommand{}
//	      },
//	    },
//	  }
//	}
//
// Flags may be bound to an environment variable, in which case the variable
// provides the default and the flag overrides it. Every flag carries a
// completion predictor, and [RootCommand.Completer] assembles them into a
// shell completion tree.
package cli

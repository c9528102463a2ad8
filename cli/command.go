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

package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// Command is the interface for a command or subcommand. Most of these functions
// have default implementations on [BaseCommand].
type Command interface {
	// Desc provides a short, one-line description of the command.
	Desc() string

	// Help is the long-form help output, including flag information.
	Help() string

	// Hidden indicates whether the command is hidden from help output.
	Hidden() bool

	// Run executes the command.
	Run(ctx context.Context, args []string) error

	Stdout() io.Writer
	SetStdout(w io.Writer)

	Stderr() io.Writer
	SetStderr(w io.Writer)

	// LookupEnv looks up an environment variable. SetLookupEnv replaces the
	// lookup function, which defaults to [os.LookupEnv].
	LookupEnv(key string) (string, bool)
	SetLookupEnv(fn LookupEnvFunc)

	// Pipe replaces stdout and stderr with fresh buffers and returns them.
	Pipe() (stdout, stderr *bytes.Buffer)
}

// FlagCommand is a command that declares flags. Its flags are used for help
// output and shell completion.
type FlagCommand interface {
	Command
	Flags() *FlagSet
}

// ArgPredictor is implemented by commands that can suggest positional
// arguments.
type ArgPredictor interface {
	PredictArgs() complete.Predictor
}

// CommandFactory returns a new instance of a command.
type CommandFactory func() Command

var _ Command = (*RootCommand)(nil)

// RootCommand dispatches to a collection of subcommands.
type RootCommand struct {
	BaseCommand

	// Name is the binary name for top-level commands, or the subcommand name
	// otherwise.
	Name string

	// Description is the human-friendly description of the command.
	Description string

	// Hide marks the entire subcommand as hidden.
	Hide bool

	// Version is printed by -version. Subcommands inherit it from the parent.
	Version string

	// Commands is the list of sub commands.
	Commands map[string]CommandFactory
}

// Desc returns the root command description.
func (r *RootCommand) Desc() string {
	return r.Description
}

// Hidden determines whether the command group is hidden.
func (r *RootCommand) Hidden() bool {
	return r.Hide
}

// Help lists the visible subcommands.
func (r *RootCommand) Help() string {
	var b strings.Builder

	longest := 0
	names := r.commandNames()
	for _, name := range names {
		if l := len(name); l > longest {
			longest = l
		}
	}

	fmt.Fprintf(&b, "Usage: %s COMMAND\n\n", r.Name)
	for _, name := range names {
		cmd := r.Commands[name]()
		if cmd == nil || cmd.Hidden() {
			continue
		}
		fmt.Fprintf(&b, "  %-*s%s\n", longest+4, name, cmd.Desc())
	}

	return strings.TrimRight(b.String(), "\n")
}

// Run prints help or version output, or delegates to a subcommand.
func (r *RootCommand) Run(ctx context.Context, args []string) error {
	name, args := extractCommandAndArgs(args)

	if name == "" || name == "-h" || name == "-help" || name == "--help" {
		fmt.Fprintln(r.Stderr(), r.Help())
		return nil
	}

	if name == "-v" || name == "-version" || name == "--version" {
		fmt.Fprintln(r.Stderr(), r.Version)
		return nil
	}

	cmd, ok := r.Commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q: run \"%s -help\" for a list of commands", name, r.Name)
	}
	instance := cmd()

	instance.SetStdout(r.Stdout())
	instance.SetStderr(r.Stderr())
	instance.SetLookupEnv(r.lookupEnv)

	if typ, ok := instance.(*RootCommand); ok {
		typ.Name = r.Name + " " + typ.Name
		typ.Version = r.Version
		return typ.Run(ctx, args)
	}

	if err := instance.Run(ctx, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(instance.Stderr(), instance.Help())
			return nil
		}
		//nolint:wrapcheck // Bubble subcommand errors as-is.
		return err
	}
	return nil
}

// Completer builds the shell completion tree for this command and all of its
// subcommands.
func (r *RootCommand) Completer() *complete.Command {
	cmd := &complete.Command{
		Sub: make(map[string]*complete.Command, len(r.Commands)),
		Flags: map[string]complete.Predictor{
			"help":    predict.Nothing,
			"version": predict.Nothing,
		},
	}

	for _, name := range r.commandNames() {
		instance := r.Commands[name]()
		if instance == nil || instance.Hidden() {
			continue
		}

		switch typ := instance.(type) {
		case *RootCommand:
			cmd.Sub[name] = typ.Completer()
		case FlagCommand:
			sub := &complete.Command{Flags: typ.Flags().Predictors()}
			if p, ok := instance.(ArgPredictor); ok {
				sub.Args = p.PredictArgs()
			}
			cmd.Sub[name] = sub
		default:
			cmd.Sub[name] = &complete.Command{}
		}
	}
	return cmd
}

func (r *RootCommand) commandNames() []string {
	names := make([]string, 0, len(r.Commands))
	for name := range r.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func extractCommandAndArgs(args []string) (string, []string) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	default:
		return args[0], args[1:]
	}
}

// BaseCommand is the default command structure. All commands should embed this
// structure.
type BaseCommand struct {
	stdout, stderr io.Writer
	lookupEnv      LookupEnvFunc
}

// Hidden indicates whether the command is hidden. The default is unhidden.
func (c *BaseCommand) Hidden() bool {
	return false
}

// Stdout returns the stdout stream.
func (c *BaseCommand) Stdout() io.Writer {
	if v := c.stdout; v != nil {
		return v
	}
	return os.Stdout
}

// SetStdout sets the standard out.
func (c *BaseCommand) SetStdout(w io.Writer) {
	c.stdout = w
}

// Stderr returns the stderr stream.
func (c *BaseCommand) Stderr() io.Writer {
	if v := c.stderr; v != nil {
		return v
	}
	return os.Stderr
}

// SetStderr sets the standard error.
func (c *BaseCommand) SetStderr(w io.Writer) {
	c.stderr = w
}

// LookupEnv looks up an environment variable, using [os.LookupEnv] unless a
// lookup function was set.
func (c *BaseCommand) LookupEnv(key string) (string, bool) {
	if c.lookupEnv != nil {
		return c.lookupEnv(key)
	}
	return os.LookupEnv(key)
}

// SetLookupEnv sets the environment lookup function. A nil function restores
// the default.
func (c *BaseCommand) SetLookupEnv(fn LookupEnvFunc) {
	c.lookupEnv = fn
}

// NewFlagSet creates a flag set bound to this command's environment lookup.
func (c *BaseCommand) NewFlagSet(opts ...Option) *FlagSet {
	return NewFlagSet(append([]Option{WithLookupEnv(c.LookupEnv)}, opts...)...)
}

// Pipe replaces stdout and stderr with new buffers and returns them. It is most
// useful in tests asserting on command output.
func (c *BaseCommand) Pipe() (stdout, stderr *bytes.Buffer) {
	stdout = bytes.NewBuffer(nil)
	stderr = bytes.NewBuffer(nil)
	c.stdout = stdout
	c.stderr = stderr
	return
}

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
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/abcxyz/chromatest/logging"
	"github.com/abcxyz/chromatest/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func TestRootCommand_Help(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cmd  Command
		exp  string
	}{
		{
			name: "no_commands",
			cmd: &RootCommand{
				Name: "test",
			},
			exp: `Usage: test COMMAND`,
		},
		{
			name: "nil_command",
			cmd: &RootCommand{
				Name: "test",
				Commands: map[string]CommandFactory{
					"nil": func() Command {
						return nil
					},
				},
			},
			exp: `Usage: test COMMAND`,
		},
		{
			name: "multiple",
			cmd: &RootCommand{
				Name: "test",
				Commands: map[string]CommandFactory{
					"start":    func() Command { return &TestCommand{} },
					"env":      func() Command { return &TestCommand{} },
					"htpasswd": func() Command { return &TestCommand{} },
				},
			},
			exp: `
Usage: test COMMAND

  env         Test command
  htpasswd    Test command
  start       Test command
`,
		},
		{
			name: "hidden",
			cmd: &RootCommand{
				Name: "test",
				Commands: map[string]CommandFactory{
					"one": func() Command { return &TestCommand{} },
					"two": func() Command {
						return &TestCommand{
							Hide: true,
						}
					},
				},
			},
			exp: `
Usage: test COMMAND

  one    Test command
`,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got, want := strings.TrimSpace(tc.cmd.Help()), strings.TrimSpace(tc.exp); got != want {
				t.Errorf("expected\n\n%s\n\nto be\n\n%s\n\n", got, want)
			}
		})
	}
}

func TestRootCommand_Run(t *testing.T) {
	t.Parallel()

	ctx := logging.WithLogger(context.Background(), logging.TestLogger(t))

	rootCmd := func() *RootCommand {
		return &RootCommand{
			Name:    "test",
			Version: "1.2.3",
			Commands: map[string]CommandFactory{
				"default": func() Command {
					return &TestCommand{
						Output: "output from default command",
					}
				},
				"error": func() Command {
					return &TestCommand{
						Error: fmt.Errorf("a bad thing happened"),
					}
				},
				"hidden": func() Command {
					return &TestCommand{
						Hide:   true,
						Output: "you found me",
					}
				},
				"child": func() Command {
					return &RootCommand{
						Name:        "child",
						Description: "This is a child command",
						Commands: map[string]CommandFactory{
							"default": func() Command {
								return &TestCommand{
									Output: "output from child",
								}
							},
						},
					}
				},
			},
		}
	}

	cases := []struct {
		name      string
		args      []string
		env       map[string]string
		err       string
		expStdout string
		expStderr string
	}{
		{
			name:      "nothing",
			args:      nil,
			expStderr: `Usage: test COMMAND`,
		},
		{
			name:      "-h",
			args:      []string{"-h"},
			expStderr: `Usage: test COMMAND`,
		},
		{
			name:      "--help",
			args:      []string{"--help"},
			expStderr: `Usage: test COMMAND`,
		},
		{
			name:      "-version",
			args:      []string{"-version"},
			expStderr: `1.2.3`,
		},
		{
			name: "unknown_command",
			args: []string{"nope"},
			err:  `unknown command "nope": run "test -help" for a list of commands`,
		},
		{
			name:      "runs_command",
			args:      []string{"default"},
			expStdout: `output from default command`,
		},
		{
			name:      "flag_overrides_output",
			args:      []string{"default", "-string", "from flag"},
			expStdout: `from flag`,
		},
		{
			name:      "env_overrides_output",
			args:      []string{"default"},
			env:       map[string]string{"TEST_STRING": "from env"},
			expStdout: `from env`,
		},
		{
			name: "handles_error",
			args: []string{"error"},
			err:  `a bad thing happened`,
		},
		{
			name:      "runs_hidden",
			args:      []string{"hidden"},
			expStdout: `you found me`,
		},
		{
			name:      "runs_child",
			args:      []string{"child", "default"},
			expStdout: `output from child`,
		},
		{
			name:      "child_version",
			args:      []string{"child", "-v"},
			expStderr: `1.2.3`,
		},
		{
			name:      "child_help",
			args:      []string{"child", "-h"},
			expStderr: `Usage: test child COMMAND`,
		},
		{
			name:      "child_help_flags",
			args:      []string{"child", "default", "-h"},
			expStderr: `-string="my-string"`,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd := rootCmd()
			stdout, stderr := cmd.Pipe()
			cmd.SetLookupEnv(MapLookuper(tc.env))

			err := cmd.Run(ctx, tc.args)
			if diff := testutil.DiffErrString(err, tc.err); diff != "" {
				t.Errorf("Unexpected err: %s", diff)
			}

			if got, want := strings.TrimSpace(stdout.String()), strings.TrimSpace(tc.expStdout); !strings.Contains(got, want) {
				t.Errorf("expected\n\n%s\n\nto contain\n\n%s\n\n", got, want)
			}
			if got, want := strings.TrimSpace(stderr.String()), strings.TrimSpace(tc.expStderr); !strings.Contains(got, want) {
				t.Errorf("expected\n\n%s\n\nto contain\n\n%s\n\n", got, want)
			}
		})
	}
}

func TestRootCommand_Completer(t *testing.T) {
	t.Parallel()

	root := &RootCommand{
		Name: "test",
		Commands: map[string]CommandFactory{
			"one":    func() Command { return &TestCommand{} },
			"hidden": func() Command { return &TestCommand{Hide: true} },
			"group": func() Command {
				return &RootCommand{
					Commands: map[string]CommandFactory{
						"two": func() Command { return &TestCommand{} },
					},
				}
			},
		},
	}

	got := root.Completer()

	if diff := cmp.Diff([]string{"group", "one"}, subNames(got)); diff != "" {
		t.Errorf("subcommands (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"two"}, subNames(got.Sub["group"])); diff != "" {
		t.Errorf("group subcommands (-want, +got):\n%s", diff)
	}

	one := got.Sub["one"]
	if _, ok := one.Flags["string"]; !ok {
		t.Errorf("expected -string flag predictor, got %v", one.Flags)
	}
	if one.Args == nil {
		t.Errorf("expected argument predictor")
	}
	if got, want := one.Args.Predict(""), []string{"alpha", "beta"}; !cmp.Equal(got, want) {
		t.Errorf("argument predictions got %q, want %q", got, want)
	}
}

func subNames(cmd *complete.Command) []string {
	names := make([]string, 0, len(cmd.Sub))
	for name := range cmd.Sub {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type TestCommand struct {
	BaseCommand

	Hide   bool
	Output string
	Error  error

	flagString string
}

func (c *TestCommand) Desc() string {
	return "Test command"
}

func (c *TestCommand) Help() string {
	return "Usage: test\n\n" + c.Flags().Help()
}

func (c *TestCommand) Flags() *FlagSet {
	set := c.NewFlagSet()

	f := set.NewSection("OPTIONS")

	f.StringVar(&StringVar{
		Name:    "string",
		Example: "my-string",
		EnvVar:  "TEST_STRING",
		Target:  &c.flagString,
		Usage:   "A literal string.",
	})

	return set
}

func (c *TestCommand) PredictArgs() complete.Predictor {
	return predict.Set{"alpha", "beta"}
}

func (c *TestCommand) Hidden() bool { return c.Hide }

func (c *TestCommand) Run(ctx context.Context, args []string) error {
	if err := c.Flags().Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := c.Error; err != nil {
		return err
	}

	out := c.Output
	if c.flagString != "" {
		out = c.flagString
	}
	fmt.Fprintln(c.Stdout(), out)
	return nil
}

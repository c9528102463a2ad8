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

//nolint:wrapcheck // These functions intentionally just wrap flag.Flag.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kr/text"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

const maxLineLength = 80

// LookupEnvFunc is the signature of [os.LookupEnv].
type LookupEnvFunc = func(string) (string, bool)

// MapLookuper returns a LookupEnvFunc that reads from a map instead of the
// environment. This is mostly used for testing.
func MapLookuper(m map[string]string) LookupEnvFunc {
	return func(s string) (string, bool) {
		v, ok := m[s]
		return v, ok
	}
}

// AfterParseFunc is called after flags have been parsed, with any error
// returned by parsing so far.
type AfterParseFunc func(existingErr error) error

// FlagSet is the root flag set for creating and managing flag sections.
type FlagSet struct {
	flagSet         *flag.FlagSet
	sections        []*FlagSection
	lookupEnv       LookupEnvFunc
	afterParseFuncs []AfterParseFunc

	// envErrs holds environment values the flag parsers rejected, keyed by
	// flag name.
	envErrs map[string]error
}

// Option is an option to the flagset.
type Option func(fs *FlagSet) *FlagSet

// WithLookupEnv defines a custom function for looking up environment variables.
func WithLookupEnv(fn LookupEnvFunc) Option {
	return func(fs *FlagSet) *FlagSet {
		if fn != nil {
			fs.lookupEnv = fn
		}
		return fs
	}
}

// NewFlagSet creates a new root flag set.
func NewFlagSet(opts ...Option) *FlagSet {
	f := flag.NewFlagSet("", flag.ContinueOnError)

	// Errors and usage are controlled by the caller.
	f.Usage = func() {}
	f.SetOutput(io.Discard)

	fs := &FlagSet{
		flagSet:   f,
		lookupEnv: os.LookupEnv,
	}

	for _, opt := range opts {
		fs = opt(fs)
	}

	return fs
}

// FlagSection is a named group of flags. The flags share one underlying
// [flag.FlagSet]; sections only affect help output.
type FlagSection struct {
	name      string
	flagNames []string

	flagSet   *flag.FlagSet
	lookupEnv LookupEnvFunc
	parent    *FlagSet
}

// NewSection creates a new flag section. By convention, section names are all
// capital letters (e.g. "CHROMA OPTIONS").
func (f *FlagSet) NewSection(name string) *FlagSection {
	fs := &FlagSection{
		name:      name,
		flagSet:   f.flagSet,
		lookupEnv: f.lookupEnv,
		parent:    f,
	}
	f.sections = append(f.sections, fs)
	return fs
}

// AfterParse registers a function to run after the flags are parsed, before
// [FlagSet.Parse] returns. It is the place for cross-flag validation.
func (f *FlagSet) AfterParse(fn AfterParseFunc) {
	if fn == nil {
		return
	}
	f.afterParseFuncs = append(f.afterParseFuncs, fn)
}

// Args implements flag.FlagSet#Args.
func (f *FlagSet) Args() []string {
	return f.flagSet.Args()
}

// Lookup implements flag.FlagSet#Lookup.
func (f *FlagSet) Lookup(name string) *flag.Flag {
	return f.flagSet.Lookup(name)
}

// Parse implements flag.FlagSet#Parse and then runs the after-parse functions.
// An invalid environment value is an error unless the flag was also given on
// the command line. Errors from every stage are joined.
func (f *FlagSet) Parse(args []string) error {
	merr := f.flagSet.Parse(args)

	if len(f.envErrs) > 0 {
		set := make(map[string]struct{})
		f.flagSet.Visit(func(fl *flag.Flag) {
			set[fl.Name] = struct{}{}
		})

		names := make([]string, 0, len(f.envErrs))
		for name := range f.envErrs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if _, ok := set[name]; ok {
				continue
			}
			// Aliases share a value, so setting any of them counts.
			if fl := f.flagSet.Lookup(name); fl != nil {
				if v, ok := fl.Value.(Value); ok && anySet(set, v.Aliases()) {
					continue
				}
			}
			merr = errors.Join(merr, f.envErrs[name])
		}
	}

	for _, fn := range f.afterParseFuncs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					merr = errors.Join(merr, fmt.Errorf("panic: %v", r))
				}
			}()

			merr = errors.Join(merr, fn(merr))
		}()
	}

	return merr
}

func anySet(set map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

// Help returns formatted help output for all sections.
func (f *FlagSet) Help() string {
	var b strings.Builder

	for _, set := range f.sections {
		sort.Strings(set.flagNames)

		fmt.Fprint(&b, set.name)
		fmt.Fprint(&b, "\n\n")

		for _, name := range set.flagNames {
			sub := set.flagSet.Lookup(name)
			if sub == nil {
				panic("inconsistency between flag structure and help")
			}

			typ, ok := sub.Value.(Value)
			if !ok {
				panic(fmt.Sprintf("flag is incorrect type %T", sub.Value))
			}

			if typ.Hidden() {
				continue
			}

			aliases := typ.Aliases()
			sort.Slice(aliases, func(i, j int) bool {
				return len(aliases[i]) < len(aliases[j])
			})
			all := make([]string, 0, len(aliases)+1)
			for _, v := range aliases {
				all = append(all, "-"+v)
			}
			all = append(all, "-"+sub.Name)

			if typ.IsBoolFlag() {
				fmt.Fprintf(&b, "    %s\n", strings.Join(all, ", "))
			} else {
				fmt.Fprintf(&b, "    %s=%q\n", strings.Join(all, ", "), typ.Example())
			}

			fmt.Fprint(&b, wrapAtLengthWithPadding(sub.Usage, 8))
			fmt.Fprint(&b, "\n\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// Predictors returns the completion predictor of every visible flag and alias,
// keyed by name without the leading dash.
func (f *FlagSet) Predictors() map[string]complete.Predictor {
	out := make(map[string]complete.Predictor)
	f.flagSet.VisitAll(func(fl *flag.Flag) {
		if v, ok := fl.Value.(Value); ok && !v.Hidden() {
			out[fl.Name] = v.Predictor()
		}
	})
	return out
}

// Value is an extension of [flag.Value] with the metadata used for help output
// and shell completion. All flags in this package satisfy it.
type Value interface {
	flag.Value

	// Get returns the value.
	Get() any

	// Aliases returns any defined aliases of the flag.
	Aliases() []string

	// Example returns an example input for the flag, shown in help output. It
	// should differ from the default value.
	Example() string

	// Hidden returns true if the flag is hidden, false otherwise.
	Hidden() bool

	// IsBoolFlag returns true if the flag accepts no arguments.
	IsBoolFlag() bool

	// Predictor returns the completion predictor for the flag's value.
	Predictor() complete.Predictor
}

// ParserFunc parses a value into T, or returns an error.
type ParserFunc[T any] func(val string) (T, error)

// PrinterFunc pretty-prints T.
type PrinterFunc[T any] func(cur T) string

// SetterFunc sets *T to T.
type SetterFunc[T any] func(cur *T, val T)

// Var describes a flag of type T. The typed helpers on [FlagSection] fill in
// the parser and printer.
type Var[T any] struct {
	Name    string
	Aliases []string
	Usage   string
	Example string
	Default T
	Hidden  bool
	IsBool  bool
	EnvVar  string
	Target  *T

	Parser  ParserFunc[T]
	Printer PrinterFunc[T]

	// Predict is the completion predictor. It defaults to predict.Nothing for
	// boolean flags and predict.Something otherwise.
	Predict complete.Predictor

	// Setter stores a parsed value into Target. It defaults to overwriting.
	Setter SetterFunc[T]
}

// Flag registers a flag on the section. When EnvVar is set and holds a value
// the parser accepts, that value replaces Default.
//
// It panics if any of the target, parser, or printer are nil.
func Flag[T any](f *FlagSection, i *Var[T]) {
	if i.Target == nil {
		panic("missing target")
	}

	parser := i.Parser
	if parser == nil {
		panic("missing parser func")
	}

	printer := i.Printer
	if printer == nil {
		panic("missing printer func")
	}

	predictor := i.Predict
	if predictor == nil {
		if i.IsBool {
			predictor = predict.Nothing
		} else {
			predictor = predict.Something
		}
	}

	setter := i.Setter
	if setter == nil {
		setter = func(cur *T, val T) { *cur = val }
	}

	initial := i.Default
	if i.EnvVar != "" {
		if v, ok := f.lookupEnv(i.EnvVar); ok {
			t, err := parser(v)
			if err != nil {
				f.recordEnvErr(i.Name, fmt.Errorf("invalid value %q for %s: %w", v, i.EnvVar, err))
			} else {
				initial = t
			}
		}
	}
	setter(i.Target, initial)

	example := i.Example
	if example == "" {
		example = fmt.Sprintf("%T", *new(T))
	}

	usage := i.Usage
	if v := printer(i.Default); v != "" {
		usage += fmt.Sprintf(" The default value is %q.", v)
	}
	if v := i.EnvVar; v != "" {
		usage += fmt.Sprintf(" This option can also be specified with the %s "+
			"environment variable.", v)
	}

	fv := &flagValue[T]{
		target:    i.Target,
		hidden:    i.Hidden,
		isBool:    i.IsBool,
		example:   example,
		parser:    parser,
		printer:   printer,
		predictor: predictor,
		setter:    setter,
		aliases:   i.Aliases,
	}
	f.flagNames = append(f.flagNames, i.Name)
	f.flagSet.Var(fv, i.Name, usage)

	// Aliases are registered on the flag set but skipped by Help.
	for _, alias := range i.Aliases {
		f.flagSet.Var(fv, alias, "")
	}
}

func (f *FlagSection) recordEnvErr(name string, err error) {
	if f.parent == nil {
		return
	}
	if f.parent.envErrs == nil {
		f.parent.envErrs = make(map[string]error)
	}
	f.parent.envErrs[name] = err
}

var _ Value = (*flagValue[any])(nil)

type flagValue[T any] struct {
	target  *T
	hidden  bool
	isBool  bool
	example string

	parser    ParserFunc[T]
	printer   PrinterFunc[T]
	setter    SetterFunc[T]
	predictor complete.Predictor
	aliases   []string
}

func (f *flagValue[T]) Set(s string) error {
	v, err := f.parser(s)
	if err != nil {
		return err
	}
	f.setter(f.target, v)
	return nil
}

func (f *flagValue[T]) Get() any                      { return *f.target }
func (f *flagValue[T]) Aliases() []string             { return f.aliases }
func (f *flagValue[T]) String() string                { return f.printer(*f.target) }
func (f *flagValue[T]) Example() string               { return f.example }
func (f *flagValue[T]) Hidden() bool                  { return f.hidden }
func (f *flagValue[T]) IsBoolFlag() bool              { return f.isBool }
func (f *flagValue[T]) Predictor() complete.Predictor { return f.predictor }

type BoolVar struct {
	Name    string
	Aliases []string
	Usage   string
	Default bool
	Hidden  bool
	EnvVar  string
	Target  *bool
}

// BoolVar creates a new boolean variable (true/false). By convention, the
// default value should always be false.
func (f *FlagSection) BoolVar(i *BoolVar) {
	Flag(f, &Var[bool]{
		Name:    i.Name,
		Aliases: i.Aliases,
		Usage:   i.Usage,
		IsBool:  true,
		Default: i.Default,
		Hidden:  i.Hidden,
		EnvVar:  i.EnvVar,
		Target:  i.Target,
		Parser:  strconv.ParseBool,
		Printer: strconv.FormatBool,
	})
}

type DurationVar struct {
	Name    string
	Aliases []string
	Usage   string
	Example string
	Default time.Duration
	Hidden  bool
	EnvVar  string
	Predict complete.Predictor
	Target  *time.Duration
}

func (f *FlagSection) DurationVar(i *DurationVar) {
	Flag(f, &Var[time.Duration]{
		Name:    i.Name,
		Aliases: i.Aliases,
		Usage:   i.Usage,
		Example: i.Example,
		Default: i.Default,
		Hidden:  i.Hidden,
		EnvVar:  i.EnvVar,
		Predict: i.Predict,
		Target:  i.Target,
		Parser:  time.ParseDuration,
		Printer: humanDuration,
	})
}

type StringVar struct {
	Name    string
	Aliases []string
	Usage   string
	Example string
	Default string
	Hidden  bool
	EnvVar  string
	Predict complete.Predictor
	Target  *string
}

func (f *FlagSection) StringVar(i *StringVar) {
	parser := func(s string) (string, error) { return s, nil }
	printer := func(v string) string { return v }

	Flag(f, &Var[string]{
		Name:    i.Name,
		Aliases: i.Aliases,
		Usage:   i.Usage,
		Example: i.Example,
		Default: i.Default,
		Hidden:  i.Hidden,
		EnvVar:  i.EnvVar,
		Predict: i.Predict,
		Target:  i.Target,
		Parser:  parser,
		Printer: printer,
	})
}

// EnumVar is a string flag restricted to a fixed set of values.
type EnumVar struct {
	Name    string
	Aliases []string
	Usage   string
	Default string
	Hidden  bool
	EnvVar  string
	Values  []string
	Target  *string
}

// EnumVar creates a string flag that rejects values outside i.Values. Matching
// ignores case and surrounding space, and stores the value as listed. The
// allowed values are listed in the usage text and offered as completions.
func (f *FlagSection) EnumVar(i *EnumVar) {
	parser := func(s string) (string, error) {
		s = strings.TrimSpace(s)
		for _, v := range i.Values {
			if strings.EqualFold(s, v) {
				return v, nil
			}
		}
		return "", fmt.Errorf("must be one of %s", strings.Join(i.Values, ", "))
	}
	printer := func(v string) string { return v }

	example := ""
	for _, v := range i.Values {
		if v != i.Default {
			example = v
			break
		}
	}

	Flag(f, &Var[string]{
		Name:    i.Name,
		Aliases: i.Aliases,
		Usage:   i.Usage + " Valid values are: " + strings.Join(i.Values, ", ") + ".",
		Example: example,
		Default: i.Default,
		Hidden:  i.Hidden,
		EnvVar:  i.EnvVar,
		Predict: predict.Set(i.Values),
		Target:  i.Target,
		Parser:  parser,
		Printer: printer,
	})
}

// humanDuration prints a duration without trailing zero units, rounded to the
// second ("1h30m" rather than "1h30m0s").
func humanDuration(d time.Duration) string {
	s := d.Round(time.Second).String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	return strings.Replace(s, "h0m", "h", 1)
}

// wrapAtLengthWithPadding wraps the given text at the maxLineLength, taking
// into account any provided left padding.
func wrapAtLengthWithPadding(s string, pad int) string {
	wrapped := text.Wrap(s, maxLineLength-pad)
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		lines[i] = strings.Repeat(" ", pad) + line
	}
	return strings.Join(lines, "\n")
}

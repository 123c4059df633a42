// Copyright 2024 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// r8compile is the CLI entry point spec.md §6 describes: it parses
// flags and @argfiles, wires the configuration/root-set/enqueuer/
// minifier/distributor/writer pipeline, and reports a typed
// compileerror.Error on failure.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const version = "r8compile (module build)"

var errUsage = errors.New("usage error")

type options struct {
	release bool
	debug   bool

	output string
	libs   repeatedFlag
	minAPI int

	pgConf         string
	pgMap          string
	noTreeShaking  bool
	noMinification bool

	mainDexRules      string
	mainDexList       string
	mainDexListOutput string

	showVersion bool
	showHelp    bool

	inputs []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	expanded, err := expandArgfiles(args)
	if err != nil {
		fmt.Fprintln(stderr, "r8compile:", err)
		return 1
	}

	opts, err := parseArgs(expanded, stderr)
	if err != nil {
		return 1
	}

	if opts.showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}
	if opts.showHelp {
		printUsage(stdout)
		return 0
	}

	if err := writeLoggerOutput(os.Getenv("LOGGER_OUTPUT"), args, filepath.Abs); err != nil {
		fmt.Fprintln(stderr, "r8compile:", err)
		return 1
	}

	if err := compile(opts); err != nil {
		fmt.Fprintln(stderr, "r8compile:", err)
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("r8compile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.BoolVar(&opts.release, "release", false, "compile in release mode")
	fs.BoolVar(&opts.debug, "debug", false, "compile in debug mode (disables inlining and switch-map removal)")
	fs.StringVar(&opts.output, "output", "", "output directory or .zip file")
	fs.Var(&opts.libs, "lib", "library classpath entry (repeatable)")
	fs.IntVar(&opts.minAPI, "min-api", 1, "minimum supported API level")
	fs.StringVar(&opts.pgConf, "pg-conf", "", "Proguard-syntax keep-rule configuration file")
	fs.StringVar(&opts.pgMap, "pg-map", "", "path to write the Proguard-format rename map")
	fs.BoolVar(&opts.noTreeShaking, "no-tree-shaking", false, "record shrinking as disabled in the configuration (no phase reads it; tree shaking still runs)")
	fs.BoolVar(&opts.noMinification, "no-minification", false, "disable class/method renaming")
	fs.StringVar(&opts.mainDexRules, "main-dex-rules", "", "Proguard-syntax rules selecting primary-DEX classes")
	fs.StringVar(&opts.mainDexList, "main-dex-list", "", "explicit list of classes required in the primary DEX")
	fs.StringVar(&opts.mainDexListOutput, "main-dex-list-output", "", "path to write the computed primary-DEX class list")
	fs.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	fs.BoolVar(&opts.showHelp, "help", false, "print usage and exit")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.inputs = fs.Args()

	if opts.showVersion || opts.showHelp {
		return opts, nil
	}

	if opts.release && opts.debug {
		fmt.Fprintln(stderr, "r8compile: --release and --debug are mutually exclusive")
		return nil, errUsage
	}
	if opts.output == "" {
		fmt.Fprintln(stderr, "r8compile: --output is required")
		return nil, errUsage
	}
	if len(opts.inputs) == 0 {
		fmt.Fprintln(stderr, "r8compile: at least one input file is required")
		return nil, errUsage
	}
	return opts, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: r8compile [flags] <input...>")
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  --release | --debug           build mode (mutually exclusive)")
	fmt.Fprintln(w, "  --output <file>               output directory or .zip")
	fmt.Fprintln(w, "  --lib <file>                  library classpath entry, repeatable")
	fmt.Fprintln(w, "  --min-api <int>                minimum supported API level")
	fmt.Fprintln(w, "  --pg-conf <file>              Proguard-syntax keep rules")
	fmt.Fprintln(w, "  --pg-map <file>               write the rename map here")
	fmt.Fprintln(w, "  --no-tree-shaking             accepted; tree shaking still runs")
	fmt.Fprintln(w, "  --no-minification             disable renaming")
	fmt.Fprintln(w, "  --main-dex-rules <file>       select primary-DEX classes by rule")
	fmt.Fprintln(w, "  --main-dex-list <file>        select primary-DEX classes explicitly")
	fmt.Fprintln(w, "  --main-dex-list-output <file> write the computed primary-DEX class list")
	fmt.Fprintln(w, "  --version                     print the version and exit")
	fmt.Fprintln(w, "  --help                        print this message and exit")
	fmt.Fprintln(w, "  @<argfile>                    read more arguments from a file")
}

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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// expandArgfiles implements spec.md §6's "@<argfile> to read arguments
// from a file": any token beginning with '@' is replaced by the
// whitespace-split, newline-separated contents of that file, applied
// recursively so an argfile may itself reference another.
func expandArgfiles(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		if !strings.HasPrefix(a, "@") {
			out = append(out, a)
			continue
		}
		expanded, err := readArgfile(a[1:], map[string]bool{})
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func readArgfile(path string, seen map[string]bool) ([]string, error) {
	if seen[path] {
		return nil, fmt.Errorf("argfile cycle: %s", path)
	}
	seen[path] = true
	defer delete(seen, path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading argfile %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			if strings.HasPrefix(tok, "@") {
				nested, err := readArgfile(tok[1:], seen)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
				continue
			}
			out = append(out, tok)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading argfile %s: %w", path, err)
	}
	return out, nil
}

// repeatedFlag accumulates one value per occurrence of a repeatable
// flag (spec.md §6: "--lib <file> (repeatable)").
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

// writeLoggerOutput implements spec.md §6's environment contract: when
// LOGGER_OUTPUT is set, write the invocation's argument vector,
// tab-separated, with non-flag arguments resolved to absolute paths.
func writeLoggerOutput(path string, args []string, absPath func(string) (string, error)) error {
	if path == "" {
		return nil
	}
	fields := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			fields[i] = a
			continue
		}
		abs, err := absPath(a)
		if err != nil {
			fields[i] = a
			continue
		}
		fields[i] = abs
	}
	return os.WriteFile(path, []byte(strings.Join(fields, "\t")+"\n"), 0644)
}

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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandArgfilesInlinesContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "args.txt")
	require.NoError(t, os.WriteFile(path, []byte("--release\n--output out.zip\n"), 0644))

	got, err := expandArgfiles([]string{"--lib", "foo.jar", "@" + path})
	require.NoError(t, err)
	assert.Equal(t, []string{"--lib", "foo.jar", "--release", "--output", "out.zip"}, got)
}

func TestExpandArgfilesDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("@"+b), 0644))
	require.NoError(t, os.WriteFile(b, []byte("@"+a), 0644))

	_, err := expandArgfiles([]string{"@" + a})
	assert.Error(t, err)
}

func TestExpandArgfilesSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "args.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n# a comment\n--release\n"), 0644))

	got, err := expandArgfiles([]string{"@" + path})
	require.NoError(t, err)
	assert.Equal(t, []string{"--release"}, got)
}

func TestRepeatedFlagAccumulates(t *testing.T) {
	var r repeatedFlag
	require.NoError(t, r.Set("a.jar"))
	require.NoError(t, r.Set("b.jar"))
	assert.Equal(t, repeatedFlag{"a.jar", "b.jar"}, r)
	assert.Equal(t, "a.jar,b.jar", r.String())
}

func TestWriteLoggerOutputResolvesNonFlagArgsToAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "logger.txt")
	abs := func(p string) (string, error) { return "/abs/" + p, nil }

	require.NoError(t, writeLoggerOutput(out, []string{"--release", "input.jar"}, abs))

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "--release\t/abs/input.jar\n", string(contents))
}

func TestWriteLoggerOutputNoopWhenPathEmpty(t *testing.T) {
	calls := 0
	abs := func(p string) (string, error) { calls++; return p, nil }
	require.NoError(t, writeLoggerOutput("", []string{"input.jar"}, abs))
	assert.Zero(t, calls)
}

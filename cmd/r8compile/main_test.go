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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsRejectsReleaseAndDebugTogether(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs([]string{"--release", "--debug", "--output", "out", "in.jar"}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), "mutually exclusive")
}

func TestParseArgsRequiresOutput(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs([]string{"in.jar"}, &stderr)
	assert.ErrorIs(t, err, errUsage)
}

func TestParseArgsRequiresAnInput(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs([]string{"--output", "out"}, &stderr)
	assert.ErrorIs(t, err, errUsage)
}

func TestParseArgsCollectsRepeatedLibsAndPositionalInputs(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseArgs([]string{
		"--output", "out.zip",
		"--lib", "a.jar",
		"--lib", "b.jar",
		"--min-api", "24",
		"in1.jar", "in2.jar",
	}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jar", "b.jar"}, []string(opts.libs))
	assert.Equal(t, 24, opts.minAPI)
	assert.Equal(t, []string{"in1.jar", "in2.jar"}, opts.inputs)
}

func TestParseArgsVersionAndHelpBypassRequiredFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseArgs([]string{"--version"}, &stderr)
	require.NoError(t, err)
	assert.True(t, opts.showVersion)

	opts, err = parseArgs([]string{"--help"}, &stderr)
	require.NoError(t, err)
	assert.True(t, opts.showHelp)
}

func TestRunPrintsVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "r8compile")
}

func TestRunFailsWithoutInputs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--output", "out"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}

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

package rename

// Package rename's naming states share one identifier-generation scheme:
// draw from a user dictionary first, then fall back to a base-26
// counter (a, b, ..., z, aa, ab, ...) once the dictionary is exhausted.

// identifierFromCounter yields the n-th short identifier in the
// spreadsheet-column sequence a, b, ..., z, aa, ab, ..., az, ba, ...
func identifierFromCounter(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	if n < 0 {
		n = 0
	}
	var out []byte
	for {
		out = append([]byte{alphabet[n%26]}, out...)
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return string(out)
}

// Namespace is the per-package-prefix naming state spec.md §4.7.1
// describes: a type counter, a package-segment counter, and the set of
// simple names already handed out in this namespace.
type Namespace struct {
	Prefix string // e.g. "Lcom/foo/"; the root namespace is "L"

	typeCounter int
	pkgCounter  int
	usedNames   map[string]bool
}

func newNamespace(prefix string) *Namespace {
	return &Namespace{Prefix: prefix, usedNames: map[string]bool{}}
}

// reserveName marks name as already taken in this namespace without
// consuming a counter slot, so a later nextTypeName skips it.
func (ns *Namespace) reserveName(name string) { ns.usedNames[name] = true }

// nextTypeName yields the next available simple class name in this
// namespace, drawing from dict first and retrying against usedNames and
// the caller-supplied global collision set (full descriptors already
// claimed by another namespace, relevant only when namespaces share a
// prefix after repackaging).
func (ns *Namespace) nextTypeName(dict []string, globalUsed map[string]bool) string {
	for {
		name := ns.candidate(dict, ns.typeCounter)
		ns.typeCounter++
		if ns.usedNames[name] {
			continue
		}
		full := ns.Prefix + name + ";"
		if globalUsed != nil && globalUsed[full] {
			continue
		}
		ns.usedNames[name] = true
		return name
	}
}

// nextPackageSegment yields the next available bare package-segment
// name (no leading/trailing slash), retried against the global set of
// already-allocated sibling segments.
func (ns *Namespace) nextPackageSegment(dict []string, globalUsed map[string]bool) string {
	for {
		name := ns.candidate(dict, ns.pkgCounter)
		ns.pkgCounter++
		if globalUsed[name] {
			continue
		}
		globalUsed[name] = true
		return name
	}
}

func (ns *Namespace) candidate(dict []string, counter int) string {
	if counter < len(dict) {
		return dict[counter]
	}
	return identifierFromCounter(counter - len(dict))
}

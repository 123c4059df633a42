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

// Package write is the application writer driver (spec.md §4.9): it
// assembles the rename map and main-dex list first, then invokes the
// external DEX codec for every virtual DEX in parallel, so reads of
// class state happen before the codec's destructive consumption of it.
package write

import (
	"context"
	"sort"
	"strings"

	"android/r8/compileerror"
	"android/r8/distribute"
	"android/r8/graph"
	"android/r8/rename"

	"golang.org/x/sync/errgroup"
)

// Encoder is the subset of codec.Encoder the driver needs; declared
// locally so write does not force every caller to depend on codec's
// blueprint.RuleParams plumbing just to run a test with a fake encoder.
type Encoder interface {
	EncodeDex(factory *graph.Factory, lens graph.Lens, classes []*graph.Class, minAPI int) ([]byte, error)
}

// Driver holds everything needed to emit a finished distribution.
type Driver struct {
	Factory *graph.Factory
	Lens    *rename.Lens
	Encoder Encoder
	MinAPI  int
}

// Result is everything the writer produces: one DEX byte slice per
// file (indexed by distribute.File.ID), the Proguard-format rename map,
// and — when requested — the primary-DEX class list.
type Result struct {
	DexFiles  [][]byte
	RenameMap string

	// MainDexList is populated only when WriteMainDexList is true.
	MainDexList string
}

// Write runs the driver. classes is the full surviving class set (used
// to build the rename map across every class, not just one DEX), plan
// is the finished distribution, and writeMainDexList mirrors
// --main-dex-list-output being set.
func (d *Driver) Write(ctx context.Context, classes []*graph.Class, plan *distribute.Plan, writeMainDexList bool) (*Result, error) {
	renameMap := d.buildRenameMap(classes)

	var mainDexList string
	if writeMainDexList {
		mainDexList = d.buildMainDexList(plan)
	}

	dexFiles := make([][]byte, len(plan.Files))
	g, _ := errgroup.WithContext(ctx)
	for _, f := range plan.Files {
		f := f
		g.Go(func() error {
			bytes, err := d.Encoder.EncodeDex(d.Factory, d.Lens, f.Classes, d.MinAPI)
			if err != nil {
				return compileerror.Atf(compileerror.KindInput, fileLabel(f), "encoding dex: %v", err)
			}
			dexFiles[f.ID] = bytes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{DexFiles: dexFiles, RenameMap: renameMap, MainDexList: mainDexList}, nil
}

func fileLabel(f *distribute.File) string {
	if len(f.Classes) == 0 {
		return ""
	}
	return f.Classes[0].Type.String()
}

func dottedName(t *graph.Type) string {
	return strings.ReplaceAll(distribute.ClassInternalName(t), "/", ".")
}

// buildRenameMap renders spec.md §6's Proguard map format: one
// "source -> renamed:" header line per class, followed by indented
// member lines for every method this module actually renamed.
func (d *Driver) buildRenameMap(classes []*graph.Class) string {
	sorted := make([]*graph.Class, len(classes))
	copy(sorted, classes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Type.String() < sorted[j].Type.String()
	})

	var b strings.Builder
	for _, c := range sorted {
		newDescriptor := d.Lens.RenamedType(c.Type)
		b.WriteString(dottedName(c.Type))
		b.WriteString(" -> ")
		b.WriteString(dottedDescriptor(newDescriptor))
		b.WriteString(":\n")

		for _, m := range c.AllMethods() {
			newName := d.Lens.RenamedMethodName(m.Ref)
			if newName == m.Ref.Name.String() {
				continue
			}
			b.WriteString("    ")
			b.WriteString(m.Ref.Name.String())
			b.WriteString("() -> ")
			b.WriteString(newName)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// dottedDescriptor converts a raw "Lcom/foo/Bar;" descriptor string to
// dotted form, mirroring distribute.ClassInternalName but operating
// directly on a string since a renamed descriptor has no interned
// *graph.Type counterpart.
func dottedDescriptor(descriptor string) string {
	d := descriptor
	if len(d) >= 2 && d[0] == 'L' && d[len(d)-1] == ';' {
		d = d[1 : len(d)-1]
	}
	return strings.ReplaceAll(d, "/", ".")
}

// buildMainDexList renders spec.md §6's main-dex-list format: one
// "pkg/Name.class" per line, covering every class in the primary DEX
// (file ID 0).
func (d *Driver) buildMainDexList(plan *distribute.Plan) string {
	if len(plan.Files) == 0 {
		return ""
	}
	primary := plan.Files[0]
	names := make([]string, 0, len(primary.Classes))
	for _, c := range primary.Classes {
		names = append(names, distribute.ClassInternalName(c.Type)+".class")
	}
	sort.Strings(names)
	return strings.Join(names, "\n") + "\n"
}

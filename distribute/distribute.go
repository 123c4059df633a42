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

// Package distribute partitions surviving program classes into virtual
// DEX files subject to the 65 536 method/field/type reference limit per
// file, per spec.md §4.8.
package distribute

import (
	"android/r8/compileerror"
	"android/r8/graph"
	"android/r8/slowcompare"
)

// MaxReferences is the per-DEX method/field/type reference limit the
// Android runtime's 16-bit index imposes.
const MaxReferences = 65536

// Mode selects the distribution strategy spec.md §4.8 names.
type Mode int

const (
	FillFiles Mode = iota
	FilePerClass
	MonoDex
	PackageMap
)

// Options configures a Distribute call.
type Options struct {
	Mode Mode

	// MainDexRoots holds the internal names ("com/foo/Bar", no leading
	// L, no trailing ;) of every class that must live in the primary
	// DEX — the union of --main-dex-rules closure and --main-dex-list,
	// computed by MainDexRoots.
	MainDexRoots map[string]bool

	// PackageMap assigns a dex index per dotted package, used only in
	// PackageMap mode.
	PackageMap map[string]int
}

// File is one virtual DEX file: a set of classes plus the running
// reference tally used to decide whether another class still fits.
type File struct {
	ID      int
	Classes []*graph.Class

	methods map[*graph.MethodRef]bool
	fields  map[*graph.FieldRef]bool
	types   map[*graph.Type]bool
}

func newFile(id int) *File {
	return &File{
		ID:      id,
		methods: map[*graph.MethodRef]bool{},
		fields:  map[*graph.FieldRef]bool{},
		types:   map[*graph.Type]bool{},
	}
}

func (f *File) MethodRefCount() int { return len(f.methods) }
func (f *File) FieldRefCount() int  { return len(f.fields) }
func (f *File) TypeRefCount() int   { return len(f.types) }

// fits reports whether c could be added without exceeding any of the
// three 65 536 caps spec.md §4.8 names.
func (f *File) fits(c *graph.Class) bool {
	refs := referencesFor(c)
	return len(unionSize(f.methods, refs.methods)) <= MaxReferences &&
		len(unionSize(f.fields, refs.fields)) <= MaxReferences &&
		len(unionSize(f.types, refs.types)) <= MaxReferences
}

// add unconditionally merges c's references into f, returning a
// compileerror.KindCapacity error (without rolling back) if any cap is
// now exceeded — used by mono-dex and forced main-dex placement, which
// must surface capacity overflow rather than silently open a new file.
func (f *File) add(c *graph.Class) error {
	refs := referencesFor(c)
	f.Classes = append(f.Classes, c)
	mergeInto(f.methods, refs.methods)
	mergeInto(f.fields, refs.fields)
	mergeInto(f.types, refs.types)

	if len(f.methods) > MaxReferences {
		return compileerror.Atf(compileerror.KindCapacity, c.Type.String(),
			"dex %d exceeds the method reference limit: %d > %d", f.ID, len(f.methods), MaxReferences)
	}
	if len(f.fields) > MaxReferences {
		return compileerror.Atf(compileerror.KindCapacity, c.Type.String(),
			"dex %d exceeds the field reference limit: %d > %d", f.ID, len(f.fields), MaxReferences)
	}
	if len(f.types) > MaxReferences {
		return compileerror.Atf(compileerror.KindCapacity, c.Type.String(),
			"dex %d exceeds the type reference limit: %d > %d", f.ID, len(f.types), MaxReferences)
	}
	return nil
}

// Plan is the finished distribution: a contiguous 0..n-1 sequence of
// non-empty DEX files, per spec.md §4.8's invariant.
type Plan struct {
	Files []*File
}

// ClassInternalName renders t's JVM/Dalvik descriptor as a bare
// "pkg/Name"-style internal name, matching the main-dex-list file
// format (spec.md §6: "newline-separated pkg/Name.class") once the
// ".class" suffix is handled by the caller.
func ClassInternalName(t *graph.Type) string {
	d := t.String()
	if len(d) >= 2 && d[0] == 'L' && d[len(d)-1] == ';' {
		return d[1 : len(d)-1]
	}
	return d
}

func sortedClasses(classes []*graph.Class) []*graph.Class {
	out := make([]*graph.Class, len(classes))
	copy(out, classes)
	slowcompare.SortItems(out, func(a, b *graph.Class) int { return slowcompare.Types(a.Type, b.Type) })
	return out
}

// Distribute partitions classes into DEX files under opts.
func Distribute(classes []*graph.Class, opts Options) (*Plan, error) {
	switch opts.Mode {
	case FilePerClass:
		return distributeFilePerClass(classes)
	case MonoDex:
		return distributeMonoDex(classes)
	case PackageMap:
		return distributePackageMap(classes, opts)
	default:
		return distributeFillFiles(classes, opts)
	}
}

func distributeFilePerClass(classes []*graph.Class) (*Plan, error) {
	sorted := sortedClasses(classes)
	files := make([]*File, 0, len(sorted))
	for i, c := range sorted {
		f := newFile(i)
		if err := f.add(c); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return &Plan{Files: files}, nil
}

func distributeMonoDex(classes []*graph.Class) (*Plan, error) {
	f := newFile(0)
	for _, c := range sortedClasses(classes) {
		if err := f.add(c); err != nil {
			return nil, err
		}
	}
	return &Plan{Files: []*File{f}}, nil
}

// distributeFillFiles implements spec.md §4.8's greedy bin-pack: the
// primary DEX is seeded with every main-dex-root class (forced, even if
// that alone exceeds capacity — that is a genuine configuration error,
// not something a second file can fix), then every remaining class goes
// to the first file it fits in, opening a new one when none does.
func distributeFillFiles(classes []*graph.Class, opts Options) (*Plan, error) {
	sorted := sortedClasses(classes)

	primary := newFile(0)
	var rest []*graph.Class
	for _, c := range sorted {
		if opts.MainDexRoots[ClassInternalName(c.Type)] {
			if err := primary.add(c); err != nil {
				return nil, err
			}
		} else {
			rest = append(rest, c)
		}
	}

	files := []*File{primary}
	for _, c := range rest {
		placed := false
		for _, f := range files {
			if f.fits(c) {
				if err := f.add(c); err != nil {
					return nil, err
				}
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		nf := newFile(len(files))
		if err := nf.add(c); err != nil {
			return nil, err
		}
		files = append(files, nf)
	}

	return &Plan{Files: nonEmpty(files)}, nil
}

// distributePackageMap honors an explicit package→DEX assignment,
// verifying afterward that every main-dex-root class landed in DEX 0
// (spec.md §4.8: "main-dex-roots are honored").
func distributePackageMap(classes []*graph.Class, opts Options) (*Plan, error) {
	sorted := sortedClasses(classes)
	byID := map[int]*File{}
	var order []int
	for _, c := range sorted {
		pkg := dottedPackage(c.Type)
		id, ok := opts.PackageMap[pkg]
		if !ok {
			id = 0
		}
		f, ok := byID[id]
		if !ok {
			f = newFile(id)
			byID[id] = f
			order = append(order, id)
		}
		if err := f.add(c); err != nil {
			return nil, err
		}
		if opts.MainDexRoots[ClassInternalName(c.Type)] && id != 0 {
			return nil, compileerror.Atf(compileerror.KindConfiguration, c.Type.String(),
				"package map assigns main-dex class to dex %d, not the primary dex", id)
		}
	}
	slowcompare.SortItems(order, func(a, b int) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
	files := make([]*File, 0, len(order))
	for i, id := range order {
		f := byID[id]
		f.ID = i
		files = append(files, f)
	}
	return &Plan{Files: files}, nil
}

func dottedPackage(t *graph.Type) string {
	name := ClassInternalName(t)
	idx := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	pkg := name[:idx]
	out := make([]byte, len(pkg))
	for i := 0; i < len(pkg); i++ {
		if pkg[i] == '/' {
			out[i] = '.'
		} else {
			out[i] = pkg[i]
		}
	}
	return string(out)
}

func nonEmpty(files []*File) []*File {
	out := make([]*File, 0, len(files))
	id := 0
	for _, f := range files {
		if len(f.Classes) == 0 {
			continue
		}
		f.ID = id
		id++
		out = append(out, f)
	}
	return out
}

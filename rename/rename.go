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

// Package rename computes the class- and method-name minification
// spec.md §4.7 describes, producing a graph.Lens the rest of the
// pipeline applies when sorting and writing the program.
package rename

import (
	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"
)

// Lens is the renaming result: a graph.Lens backed by the class- and
// method-namers' decisions, with every un-renamed item falling back to
// its original name.
type Lens struct {
	types   map[*graph.Type]string
	methods map[*graph.MethodRef]string
}

var _ graph.Lens = (*Lens)(nil)

func (l *Lens) RenamedType(t *graph.Type) string {
	if name, ok := l.types[t]; ok {
		return name
	}
	return t.String()
}

func (l *Lens) RenamedMethodName(m *graph.MethodRef) string {
	if name, ok := l.methods[m]; ok {
		return name
	}
	return m.Name.String()
}

// Minify runs the class-name and method-name minifiers over the live
// program described by app under cfg's obfuscation settings, per
// SPEC_FULL.md §6. If cfg.Obfuscate is false it returns an identity
// Lens, so callers never need a separate no-op code path.
func Minify(factory *graph.Factory, app *enqueue.AppInfoWithLiveness, cfg *keepconfig.Configuration, roots *rootset.RootSet) (*Lens, error) {
	if !cfg.Obfuscate {
		return &Lens{types: map[*graph.Type]string{}, methods: map[*graph.MethodRef]string{}}, nil
	}

	cn := newClassNamer(factory, cfg, roots)
	types := cn.Run(app)

	mn := newMethodNamer(factory, cfg, roots)
	methods := mn.Run(app)

	return &Lens{types: types, methods: methods}, nil
}

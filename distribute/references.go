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

package distribute

import "android/r8/graph"

// refSet is the distinct method/field/type references one class
// contributes to whichever DEX file holds it.
type refSet struct {
	methods map[*graph.MethodRef]bool
	fields  map[*graph.FieldRef]bool
	types   map[*graph.Type]bool
}

// referencesFor walks a class's declared members and code to compute the
// constant-pool entries it would add to a DEX file, per spec.md §4.8
// ("compute the delta: new method/field/type references").
func referencesFor(c *graph.Class) refSet {
	r := refSet{
		methods: map[*graph.MethodRef]bool{},
		fields:  map[*graph.FieldRef]bool{},
		types:   map[*graph.Type]bool{},
	}
	r.types[c.Type] = true
	if c.Super != nil {
		r.types[c.Super] = true
	}
	for _, i := range c.Interfaces {
		r.types[i] = true
	}
	for _, a := range c.Annotations {
		r.types[a.Type] = true
	}
	for _, m := range c.AllMethods() {
		r.methods[m.Ref] = true
		r.types[m.Ref.Proto.Return] = true
		for _, p := range m.Ref.Proto.Params {
			r.types[p] = true
		}
		addCodeRefs(m.Code, &r)
	}
	for _, f := range c.StaticFields {
		r.fields[f.Ref] = true
		r.types[f.Ref.Type] = true
	}
	for _, f := range c.InstanceFields {
		r.fields[f.Ref] = true
		r.types[f.Ref.Type] = true
	}
	return r
}

func addCodeRefs(code *graph.Code, r *refSet) {
	if code == nil {
		return
	}
	switch code.Kind {
	case graph.CodeKindDex:
		if code.Dex != nil {
			for _, ins := range code.Dex.Instructions {
				addInstructionRefs(ins, r)
			}
		}
	case graph.CodeKindIR:
		if code.IR != nil {
			for _, b := range code.IR.Blocks {
				for _, ins := range b.Instructions {
					addInstructionRefs(ins, r)
				}
			}
		}
	}
}

func addInstructionRefs(ins graph.Instruction, r *refSet) {
	for _, op := range ins.Operands {
		if op.Method != nil {
			r.methods[op.Method] = true
			r.types[op.Method.Holder] = true
		}
		if op.Field != nil {
			r.fields[op.Field] = true
			r.types[op.Field.Holder] = true
		}
		if op.Type != nil {
			r.types[op.Type] = true
		}
	}
}

func mergeInto[K comparable](dst map[K]bool, src map[K]bool) {
	for k := range src {
		dst[k] = true
	}
}

// unionSize returns a map whose length is |dst ∪ src| without mutating
// dst, used by File.fits to probe capacity before committing.
func unionSize[K comparable](dst map[K]bool, src map[K]bool) map[K]bool {
	out := make(map[K]bool, len(dst)+len(src))
	for k := range dst {
		out[k] = true
	}
	for k := range src {
		out[k] = true
	}
	return out
}

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

// Package graph is the interned program-graph data model: the pool of
// types, strings, methods, fields and protos, the class table, and the
// subtype index (spec.md §3, §4.1).
package graph

import (
	"fmt"
	"strings"
	"sync"
)

// String is an interned UTF-8 string. Two Strings with equal bytes are
// always the same *String; compare by pointer.
type String struct {
	bytes string
	hash  uint64
}

func (s *String) String() string { return s.bytes }

// Less orders two Strings by lexicographic byte order.
func (s *String) Less(o *String) bool { return s.bytes < o.bytes }

func fnv64(s string) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// TypeFlags classifies a Type the way spec.md §3 describes: "a flag set
// {is-class, is-array, is-primitive, is-interface}".
type TypeFlags uint8

const (
	FlagClass TypeFlags = 1 << iota
	FlagArray
	FlagPrimitive
	FlagInterface
)

// Type is an interned type descriptor: a class ("Lpkg/Name;"), an array
// ("[Lpkg/Name;", "[[I", ...), or a primitive ("I", "V", "Z", ...).
type Type struct {
	descriptor *String
	flags      TypeFlags

	// class is the back-pointer to the owning Class, populated once the
	// definition is known. nil for primitives, arrays, and classes that
	// are referenced but never defined (missing/library-opaque).
	mu    sync.Mutex
	class *Class
}

func (t *Type) String() string { return t.descriptor.bytes }

func (t *Type) IsClass() bool     { return t.flags&FlagClass != 0 }
func (t *Type) IsArray() bool     { return t.flags&FlagArray != 0 }
func (t *Type) IsPrimitive() bool { return t.flags&FlagPrimitive != 0 }
func (t *Type) IsInterface() bool { return t.flags&FlagInterface != 0 }

// ElementType returns the element type of an array type by stripping one
// leading '[', or nil if t is not an array.
func (t *Type) ElementType(f *Factory) *Type {
	if !t.IsArray() {
		return nil
	}
	return f.CreateType(t.descriptor.bytes[1:])
}

func (t *Type) setClass(c *Class) {
	t.mu.Lock()
	t.class = c
	t.mu.Unlock()
}

func (t *Type) definition() *Class {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.class
}

// Proto is a method's (return type, parameter types) signature. Identity
// defines overloading: two methods with the same name but different
// Protos do not override one another.
type Proto struct {
	key    string
	Return *Type
	Params []*Type
}

func (p *Proto) String() string { return p.key }

func protoKey(ret *Type, params []*Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range params {
		b.WriteString(p.descriptor.bytes)
	}
	b.WriteByte(')')
	b.WriteString(ret.descriptor.bytes)
	return b.String()
}

// MethodRef is an interned (holder, name, proto) triple. It identifies a
// method signature irrespective of which EncodedMethod (if any) currently
// implements it.
type MethodRef struct {
	Holder *Type
	Name   *String
	Proto  *Proto
	key    string
}

func (m *MethodRef) String() string { return m.key }

// ErasedSignature is the (name, proto) pair with the holder removed —
// the key virtual dispatch and interface-joining compare by, since two
// methods in unrelated classes/interfaces can share one dispatch slot
// only if their erased signatures match (spec.md §4.7.2).
func (m *MethodRef) ErasedSignature() string {
	return m.Name.bytes + m.Proto.key
}

// FieldRef is an interned (holder, name, type) triple.
type FieldRef struct {
	Holder *Type
	Name   *String
	Type   *Type
	key    string
}

func (f *FieldRef) String() string { return f.key }

// Factory is the single interning authority for one compilation. All
// creations are serialized through mu; reads (DefinitionFor, the getters
// above) are safe for concurrent use once population has happened,
// matching spec.md §4.1's concurrency contract and §5's "safely shared
// after its initial population".
//
// Implementations MUST pass a *Factory explicitly rather than reach for
// a package-level singleton (spec.md §9, "Global state").
type Factory struct {
	mu sync.Mutex

	strings map[string]*String
	types   map[string]*Type
	protos  map[string]*Proto
	methods map[string]*MethodRef
	fields  map[string]*FieldRef

	classes map[*Type]*Class // definition map; absent entry = missing/library-opaque
	subtype *SubtypeIndex

	sorted bool // true once Sort(lens) has run; see Factory.Sort.
	lens   Lens
}

// NewFactory creates an empty, populated-on-demand item factory.
func NewFactory() *Factory {
	return &Factory{
		strings: make(map[string]*String),
		types:   make(map[string]*Type),
		protos:  make(map[string]*Proto),
		methods: make(map[string]*MethodRef),
		fields:  make(map[string]*FieldRef),
		classes: make(map[*Type]*Class),
		subtype: newSubtypeIndex(),
	}
}

// CreateString interns bytes, returning the canonical *String.
func (f *Factory) CreateString(bytes string) *String {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.strings[bytes]; ok {
		return s
	}
	s := &String{bytes: bytes, hash: fnv64(bytes)}
	f.strings[bytes] = s
	return s
}

// CreateType interns a type descriptor, returning the canonical *Type.
// descriptor must already be well formed ("Lpkg/Name;", "[...", or a
// single primitive character); callers at the classfile/DEX boundary are
// responsible for descriptor syntax validation (spec.md §3's invariant
// "descriptor syntactically valid" is enforced there, not here, since the
// codec is the only place that sees raw bytes).
func (f *Factory) CreateType(descriptor string) *Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.types[descriptor]; ok {
		return t
	}
	var flags TypeFlags
	switch {
	case strings.HasPrefix(descriptor, "["):
		flags = FlagArray
	case strings.HasPrefix(descriptor, "L"):
		flags = FlagClass
	default:
		flags = FlagPrimitive
	}
	t := &Type{descriptor: f.internLocked(descriptor), flags: flags}
	f.types[descriptor] = t
	return t
}

// MarkInterface records that t is an interface type. Called by the
// class reader once a class's access flags are known; safe to call more
// than once.
func (f *Factory) MarkInterface(t *Type) {
	f.mu.Lock()
	t.flags |= FlagInterface
	f.mu.Unlock()
}

func (f *Factory) internLocked(bytes string) *String {
	if s, ok := f.strings[bytes]; ok {
		return s
	}
	s := &String{bytes: bytes, hash: fnv64(bytes)}
	f.strings[bytes] = s
	return s
}

// CreateProto interns a (return, params) proto.
func (f *Factory) CreateProto(ret *Type, params []*Type) *Proto {
	key := protoKey(ret, params)
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.protos[key]; ok {
		return p
	}
	p := &Proto{key: key, Return: ret, Params: append([]*Type(nil), params...)}
	f.protos[key] = p
	return p
}

// CreateMethod interns a (holder, name, proto) method reference.
func (f *Factory) CreateMethod(holder *Type, name *String, proto *Proto) *MethodRef {
	key := holder.descriptor.bytes + "->" + name.bytes + proto.key
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.methods[key]; ok {
		return m
	}
	m := &MethodRef{Holder: holder, Name: name, Proto: proto, key: key}
	f.methods[key] = m
	return m
}

// CreateField interns a (holder, name, type) field reference.
func (f *Factory) CreateField(holder *Type, name *String, typ *Type) *FieldRef {
	key := holder.descriptor.bytes + "->" + name.bytes + ":" + typ.descriptor.bytes
	f.mu.Lock()
	defer f.mu.Unlock()
	if fr, ok := f.fields[key]; ok {
		return fr
	}
	fr := &FieldRef{Holder: holder, Name: name, Type: typ, key: key}
	f.fields[key] = fr
	return fr
}

// DefinitionFor returns the class defining t, if any. A missing result is
// a normal, recoverable state (spec.md §3, "missing is a recoverable
// state, not a fatal error") — callers distinguish "no definition" from
// "not yet looked up" only by this boolean, never by a nil-panic.
func (f *Factory) DefinitionFor(t *Type) (*Class, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[t]
	return c, ok
}

// Define registers c as the definition of its own Type, updates the
// subtype index, and marks interface types. Defining the same Type twice
// is a configuration error (duplicate class), reported by the caller
// (the reader), not by Define itself.
func (f *Factory) Define(c *Class) {
	f.mu.Lock()
	f.classes[c.Type] = c
	if c.AccessFlags.IsInterface() {
		c.Type.flags |= FlagInterface
	}
	f.mu.Unlock()
	c.Type.setClass(c)
	f.subtype.add(c)
}

// Subtype returns the shared subtype index for this factory.
func (f *Factory) Subtype() *SubtypeIndex { return f.subtype }

// AllClasses returns every defined class, in unspecified order. Callers
// that need determinism sort with slowcompare before use.
func (f *Factory) AllClasses() []*Class {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Class, 0, len(f.classes))
	for _, c := range f.classes {
		out = append(out, c)
	}
	return out
}

// Sort records lens as the final renaming and refuses a second call, so
// the post-rename state is latched once (spec.md §4.1). It does not
// reorder the factory's internal tables or assign indices.
func (f *Factory) Sort(lens Lens) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sorted {
		return fmt.Errorf("graph: Factory.Sort called twice")
	}
	f.sorted = true
	// lens is stored on the factory; no table is reordered here.
	f.lens = lens
	return nil
}

// Lens is the renaming indirection spec.md §3 refers to ("renaming is
// applied through a lens, see §4.5"); rename.Lens implements it.
type Lens interface {
	RenamedType(t *Type) string
	RenamedMethodName(m *MethodRef) string
}

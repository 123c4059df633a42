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

package graph

import "fmt"

// Origin records where a class came from, per spec.md §3's "origin
// {program, classpath, library}". The enqueuer (see package enqueue)
// treats OriginLibrary classes as opaque may-be-anything roots.
type Origin uint8

const (
	OriginProgram Origin = iota
	OriginClasspath
	OriginLibrary
)

func (o Origin) String() string {
	switch o {
	case OriginProgram:
		return "program"
	case OriginClasspath:
		return "classpath"
	case OriginLibrary:
		return "library"
	default:
		return "unknown"
	}
}

// AccessFlags mirrors the JVM/Dalvik access_flags bitset closely enough
// for the matcher and dispatch rules that need it; it is not a full
// decoding of every classfile modifier.
type AccessFlags uint32

const (
	AccPublic AccessFlags = 1 << iota
	AccPrivate
	AccProtected
	AccStatic
	AccFinal
	AccInterface
	AccAbstract
	AccSynthetic
	AccAnnotation
	AccEnum
	AccBridge
	AccVarargs
	AccNative
	AccConstructor // Dalvik-specific: <init> and <clinit>
)

func (a AccessFlags) IsPublic() bool      { return a&AccPublic != 0 }
func (a AccessFlags) IsPrivate() bool     { return a&AccPrivate != 0 }
func (a AccessFlags) IsProtected() bool   { return a&AccProtected != 0 }
func (a AccessFlags) IsStatic() bool      { return a&AccStatic != 0 }
func (a AccessFlags) IsFinal() bool       { return a&AccFinal != 0 }
func (a AccessFlags) IsInterface() bool   { return a&AccInterface != 0 }
func (a AccessFlags) IsAbstract() bool    { return a&AccAbstract != 0 }
func (a AccessFlags) IsSynthetic() bool   { return a&AccSynthetic != 0 }
func (a AccessFlags) IsAnnotation() bool  { return a&AccAnnotation != 0 }
func (a AccessFlags) IsEnum() bool        { return a&AccEnum != 0 }
func (a AccessFlags) IsConstructor() bool { return a&AccConstructor != 0 }

// Annotation is a decoded annotation instance: a type plus its element
// name/value payload. Values may themselves be nested Annotations,
// []any, *Type, *String, or a primitive Go value — see enqueue's
// annotation marker for how the payload is walked.
type Annotation struct {
	Type     *Type
	Elements map[string]any
	Visible  bool // RUNTIME vs BUILD/CLASS retention
}

// Class is a mutable program object: one class, interface, or
// annotation-type definition.
type Class struct {
	Type   *Type
	Origin Origin

	AccessFlags AccessFlags
	Super       *Type // nil only for java/lang/Object
	Interfaces  []*Type
	SourceFile  string

	Annotations []Annotation

	StaticFields   []*EncodedField
	InstanceFields []*EncodedField
	DirectMethods  []*EncodedMethod // constructors, static, private
	VirtualMethods []*EncodedMethod // everything else

	// EnclosingClass is set from an @EnclosingClass-equivalent annotation
	// when present; used by the class minifier's keep-inner-class mode
	// (spec.md §4.7.1).
	EnclosingClass *Type
}

// Validate checks the invariants spec.md §3 lists for Class. It is meant
// to run once per class right after the reader populates it, not on
// every access.
func (c *Class) Validate() error {
	if c.Super == c.Type {
		return fmt.Errorf("class %s extends itself", c.Type)
	}
	for _, iface := range c.Interfaces {
		if iface == c.Type {
			return fmt.Errorf("class %s implements itself", c.Type)
		}
	}
	for _, m := range c.DirectMethods {
		if !m.AccessFlags.IsStatic() && !m.AccessFlags.IsPrivate() && !m.AccessFlags.IsConstructor() {
			return fmt.Errorf("method %s is in direct-method position but is neither constructor, static, nor private", m.Ref)
		}
	}
	for _, m := range c.VirtualMethods {
		if m.AccessFlags.IsStatic() || m.AccessFlags.IsPrivate() || m.AccessFlags.IsConstructor() {
			return fmt.Errorf("method %s is in virtual-method position but is constructor, static, or private", m.Ref)
		}
	}
	return nil
}

// AllMethods returns direct methods followed by virtual methods.
func (c *Class) AllMethods() []*EncodedMethod {
	out := make([]*EncodedMethod, 0, len(c.DirectMethods)+len(c.VirtualMethods))
	out = append(out, c.DirectMethods...)
	out = append(out, c.VirtualMethods...)
	return out
}

// AllFields returns static fields followed by instance fields.
func (c *Class) AllFields() []*EncodedField {
	out := make([]*EncodedField, 0, len(c.StaticFields)+len(c.InstanceFields))
	out = append(out, c.StaticFields...)
	out = append(out, c.InstanceFields...)
	return out
}

// FindVirtualMethod returns the virtual method on c, if any, whose
// erased signature matches sig.
func (c *Class) FindVirtualMethod(sig string) (*EncodedMethod, bool) {
	for _, m := range c.VirtualMethods {
		if m.Ref.ErasedSignature() == sig {
			return m, true
		}
	}
	return nil, false
}

// FindInstanceField returns the instance field on c, if any, named name.
func (c *Class) FindInstanceField(name string) (*EncodedField, bool) {
	for _, fl := range c.InstanceFields {
		if fl.Ref.Name.bytes == name {
			return fl, true
		}
	}
	return nil, false
}

// EncodedMethod is a method definition: a reference plus access flags
// and an optional body.
type EncodedMethod struct {
	Ref         *MethodRef
	AccessFlags AccessFlags
	Code        *Code // nil for abstract/native methods
	Annotations []Annotation
	DebugInfo   *DebugInfo
}

// EncodedField is a field definition: a reference plus access flags and
// an optional static initial value.
type EncodedField struct {
	Ref         *FieldRef
	AccessFlags AccessFlags
	StaticValue any // nil unless AccessFlags.IsStatic() and an initializer is present
	Annotations []Annotation
}

// DebugInfo is a minimal carrier for local-variable debug entries; only
// what the debug-info-consistency check (spec.md §7) needs.
type DebugInfo struct {
	Locals []LocalVarEntry
}

// LocalVarEntry records the debug-declared type of one local across a
// register range.
type LocalVarEntry struct {
	Register       int
	DeclaredType   *Type
	StartPC, EndPC uint32
}

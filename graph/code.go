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

// MoveType tags the width/kind of a value moved between registers or
// SSA values, per spec.md §3's "move-type tags {single, wide, object}".
type MoveType uint8

const (
	MoveSingle MoveType = iota
	MoveWide
	MoveObject
)

// JavaType records the debug-facing source type for a value whose
// MoveType is MoveSingle but which is actually a byte or a boolean — the
// "byte-or-bool type widening" spec.md §9 flags as an open question.
// This module resolves it as: MoveSingle plus an optional JavaType side
// entry, rather than adding a fourth MoveType (see SPEC_FULL.md §11).
type JavaType uint8

const (
	JavaTypeUnknown JavaType = iota
	JavaTypeByte
	JavaTypeBoolean
	JavaTypeChar
	JavaTypeShort
	JavaTypeInt
	JavaTypeFloat
)

// CodeKind tags which representation a Code value holds — a tagged sum
// per spec.md §9 ("dispatch on item kind... express as a tagged sum, not
// an inheritance hierarchy"), rather than two Code subtypes.
type CodeKind uint8

const (
	CodeKindDex CodeKind = iota // register-based, read from a .dex input
	CodeKindIR                  // SSA-ish CFG, read from a .class input
)

// Code is either Dex-register-based instructions or a CFG of IR
// instructions over SSA values (spec.md §3).
type Code struct {
	Kind CodeKind
	Dex  *DexCode
	IR   *IRCode
}

// DexCode is the register-based representation.
type DexCode struct {
	RegisterCount int
	InsSize       int
	OutsSize      int
	Instructions  []Instruction
}

// IRCode is the SSA-ish CFG representation produced by the classfile
// front end.
type IRCode struct {
	Blocks []*BasicBlock
}

// BasicBlock is one node of an IRCode control-flow graph.
type BasicBlock struct {
	ID           int
	Instructions []Instruction
	Successors   []int
}

// Instruction is a single polymorphic opcode instance: one tagged
// variant per opcode, carrying formatted operands, rather than one Go
// type per opcode (spec.md §9). BuildIR lets a pass lower/rewrite the
// instruction without a type switch at every call site.
type Instruction struct {
	Opcode   Opcode
	Operands []Operand
	MoveType MoveType
	JavaType JavaType // only meaningful when MoveType == MoveSingle
}

// Opcode enumerates the instruction shapes the enqueuer and call-graph
// builder need to recognize; it is not a full Dalvik opcode table.
type Opcode uint16

const (
	OpNop Opcode = iota
	OpConst
	OpNew                // triggers mark-instantiated
	OpNewArray           // marks the array type live, not instantiated
	OpInvokeVirtual      // triggers the invoke-virtual transition rule
	OpInvokeInterface    // triggers the invoke-interface transition rule
	OpInvokeSuper        // triggers the invoke-super transition rule
	OpInvokeDirect       // constructors/private: statically resolved, no dispatch
	OpInvokeStatic       // statically resolved, no dispatch
	OpInstanceFieldGet   // triggers instance-field reachability
	OpInstanceFieldPut   // triggers instance-field reachability
	OpStaticFieldGet     // triggers static-field resolution
	OpStaticFieldPut     // triggers static-field resolution
	OpCheckCast          // references a type, does not trigger instantiation
	OpInstanceOf         // references a type, does not trigger instantiation
	OpReturn
	OpThrow
)

// Operand is one operand of an Instruction: a register/SSA-value index,
// an interned Type, a MethodRef, a FieldRef, or a constant.
type Operand struct {
	Register  int
	Type      *Type
	Method    *MethodRef
	Field     *FieldRef
	Const     any
	IsDefined bool // true if Register is a definition (SSA) rather than a use
}

// BuildIR is the shared trait spec.md §9 calls for: a pass calls it to
// get the operands relevant to it without a type switch on Opcode.
func (i Instruction) BuildIR(b IRBuilder) {
	b.Emit(i.Opcode, i.Operands)
}

// IRBuilder is implemented by passes that consume instructions one at a
// time. The call-graph builder and the enqueuer do not use it; they read
// Instruction operands directly.
type IRBuilder interface {
	Emit(op Opcode, operands []Operand)
}

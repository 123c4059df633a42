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

// Package compileerror defines the typed error taxonomy shared by every
// compiler phase, in place of the exception-based control flow of the
// original tool (see spec.md §9, "Exceptions as control flow").
package compileerror

import "fmt"

// Kind classifies a compilation error into one of the categories a caller
// (the CLI driver, a test) might want to branch on.
type Kind int

const (
	// KindConfiguration covers unknown/unsupported options and malformed
	// keep rules.
	KindConfiguration Kind = iota
	// KindInput covers unreadable files, unknown DEX versions, invalid
	// descriptors, and self-extending classes.
	KindInput
	// KindMissingReference covers a class/method/field referenced but not
	// defined anywhere in the program, classpath, or library.
	KindMissingReference
	// KindAmbiguousDispatch covers invoke-interface on a non-interface
	// method or invoke-virtual on an interface method.
	KindAmbiguousDispatch
	// KindCapacity covers per-DEX reference-table overflow.
	KindCapacity
	// KindDebugInfo covers a local read/write whose declared debug type
	// is incompatible with the value actually stored.
	KindDebugInfo
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInput:
		return "input"
	case KindMissingReference:
		return "missing reference"
	case KindAmbiguousDispatch:
		return "ambiguous dispatch"
	case KindCapacity:
		return "capacity"
	case KindDebugInfo:
		return "debug info"
	default:
		return "unknown"
	}
}

// Error is a typed compilation error. Item is the descriptor of the
// offending class/method/field, if any (e.g. "Lcom/foo/Bar;.baz()V");
// it is empty for errors with no single associated item.
type Error struct {
	Kind  Kind
	Item  string
	Cause error
}

func (e *Error) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s error at %s: %v", e.Kind, e.Item, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New wraps cause as a typed Error with no associated item.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Newf is like New but builds the cause with fmt.Errorf.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// At attaches an item descriptor to a typed error.
func At(kind Kind, item string, cause error) *Error {
	return &Error{Kind: kind, Item: item, Cause: cause}
}

// Atf is like At but builds the cause with fmt.Errorf.
func Atf(kind Kind, item, format string, args ...any) *Error {
	return &Error{Kind: kind, Item: item, Cause: fmt.Errorf(format, args...)}
}

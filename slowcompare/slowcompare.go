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

// Package slowcompare provides the single canonical total order every
// phase sorts by before emitting or iterating, so that two runs over the
// same input produce bit-identical output (spec.md §4.4, §4.5, §8).
//
// It is called "slow" deliberately: it is never used as a map key or in a
// hot lookup path, only at the handful of explicit sort points the spec
// calls out. Using it anywhere else would be a correctness smell, not a
// performance one.
package slowcompare

import (
	"slices"
	"strings"

	"android/r8/graph"
)

// Strings orders two byte strings lexicographically.
func Strings(a, b string) int {
	return strings.Compare(a, b)
}

// Types orders two interned types by descriptor bytes.
func Types(a, b *graph.Type) int {
	return strings.Compare(a.String(), b.String())
}

// Methods orders two method references by (holder descriptor, name,
// proto key) — holder first, since the enqueuer and call graph both sort
// "sibling work" grouped by declaring type before breaking ties on name.
func Methods(a, b *graph.MethodRef) int {
	if c := strings.Compare(a.Holder.String(), b.Holder.String()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name.String(), b.Name.String()); c != 0 {
		return c
	}
	return strings.Compare(a.Proto.String(), b.Proto.String())
}

// Fields orders two field references by (holder descriptor, name, type).
func Fields(a, b *graph.FieldRef) int {
	if c := strings.Compare(a.Holder.String(), b.Holder.String()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name.String(), b.Name.String()); c != 0 {
		return c
	}
	return strings.Compare(a.Type.String(), b.Type.String())
}

// Slice orders two slices of comparable items lexicographically, using
// cmp to compare corresponding elements. A shorter prefix sorts first.
func Slice[T any](a, b []T, cmp func(T, T) int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := cmp(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// SortItems sorts items in place by the total order induced by cmp. The
// sort is stable, so ties between items cmp considers equal keep their
// relative order from before the call — which matters wherever the
// pre-sort order is itself deterministic (e.g. interning order).
func SortItems[T any](items []T, cmp func(a, b T) int) {
	slices.SortStableFunc(items, cmp)
}

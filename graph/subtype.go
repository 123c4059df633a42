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

import "sync"

// SubtypeIndex maintains, for every type, its direct-extends and
// direct-implements subtypes (spec.md §3). It backs
// forAllExtendsSubtypes / forAllImplementsSubtypes / interface-target
// lookup used throughout the enqueuer and minifier.
type SubtypeIndex struct {
	mu               sync.RWMutex
	directExtendedBy map[*Type][]*Type // super -> direct subclasses
	directImplBy     map[*Type][]*Type // interface -> direct implementors (classes or sub-interfaces)
}

func newSubtypeIndex() *SubtypeIndex {
	return &SubtypeIndex{
		directExtendedBy: make(map[*Type][]*Type),
		directImplBy:     make(map[*Type][]*Type),
	}
}

func (s *SubtypeIndex) add(c *Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Super != nil {
		s.directExtendedBy[c.Super] = append(s.directExtendedBy[c.Super], c.Type)
	}
	for _, iface := range c.Interfaces {
		s.directImplBy[iface] = append(s.directImplBy[iface], c.Type)
	}
}

// DirectExtendsSubtypes returns the direct subclasses of t.
func (s *SubtypeIndex) DirectExtendsSubtypes(t *Type) []*Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Type(nil), s.directExtendedBy[t]...)
}

// DirectImplementsSubtypes returns the direct implementors (or, for an
// interface super-type, the direct sub-interfaces) of t.
func (s *SubtypeIndex) DirectImplementsSubtypes(t *Type) []*Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Type(nil), s.directImplBy[t]...)
}

// ForAllExtendsSubtypes walks the transitive extends-closure of t
// (t itself excluded), depth-first, calling fn on each subtype. Walking
// stops early if fn returns false.
func (s *SubtypeIndex) ForAllExtendsSubtypes(t *Type, fn func(*Type) bool) {
	var walk func(*Type) bool
	walk = func(t *Type) bool {
		for _, sub := range s.DirectExtendsSubtypes(t) {
			if !fn(sub) || !walk(sub) {
				return false
			}
		}
		return true
	}
	walk(t)
}

// ForAllImplementsSubtypes walks the transitive implements-closure of t
// (direct and indirect implementors/sub-interfaces), depth-first.
func (s *SubtypeIndex) ForAllImplementsSubtypes(t *Type, fn func(*Type) bool) {
	for _, sub := range s.DirectImplementsSubtypes(t) {
		if !fn(sub) {
			return
		}
		s.ForAllImplementsSubtypes(sub, fn)
		s.ForAllExtendsSubtypes(sub, fn)
	}
}

// AnySuperTypeMatches reports whether any class in c's extends-chain
// (not including c itself) satisfies match.
func AnySuperTypeMatches(f *Factory, c *Class, match func(*Class) bool) bool {
	cur := c.Super
	for cur != nil {
		def, ok := f.DefinitionFor(cur)
		if !ok {
			return false
		}
		if match(def) {
			return true
		}
		cur = def.Super
	}
	return false
}

// AnyImplementedInterfaceMatches reports whether any interface
// transitively implemented by c satisfies match.
func AnyImplementedInterfaceMatches(f *Factory, c *Class, match func(*Class) bool) bool {
	seen := map[*Type]bool{}
	var walk func(*Class) bool
	walk = func(cl *Class) bool {
		for _, iface := range cl.Interfaces {
			if seen[iface] {
				continue
			}
			seen[iface] = true
			def, ok := f.DefinitionFor(iface)
			if !ok {
				continue
			}
			if match(def) {
				return true
			}
			if walk(def) {
				return true
			}
		}
		if cl.Super != nil {
			if def, ok := f.DefinitionFor(cl.Super); ok {
				return walk(def)
			}
		}
		return false
	}
	return walk(c)
}

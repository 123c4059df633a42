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

package rename

import (
	"strings"

	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"
	"android/r8/slowcompare"
)

// protoState is the per-proto bucket inside one NamingState: the names
// that are reserved (cannot be renamed to, but may remain as an original)
// and the names already handed out by renaming, per spec.md §4.7.2.
type protoState struct {
	reserved map[string]bool
	used     map[string]bool
	counter  int
}

func newProtoState() *protoState {
	return &protoState{reserved: map[string]bool{}, used: map[string]bool{}}
}

// NamingState is the chain-parented naming-state object spec.md §4.7.2
// describes: lookup walks up the parent chain; a child state is created
// on demand. Every class and every interface gets exactly one.
type NamingState struct {
	parent *NamingState
	protos map[string]*protoState
}

func newNamingState(parent *NamingState) *NamingState {
	return &NamingState{parent: parent, protos: map[string]*protoState{}}
}

func (s *NamingState) bucket(proto *graph.Proto) *protoState {
	key := proto.String()
	ps, ok := s.protos[key]
	if !ok {
		ps = newProtoState()
		s.protos[key] = ps
	}
	return ps
}

// reserve marks name as unavailable for renaming at this state for proto,
// without consuming a renaming slot — it may remain as an original name.
func (s *NamingState) reserve(proto *graph.Proto, name string) { s.bucket(proto).reserved[name] = true }

func (s *NamingState) markUsed(proto *graph.Proto, name string) { s.bucket(proto).used[name] = true }

// isAvailable implements spec.md §4.7.2's availability predicate: name N
// is available for proto P at state S iff no ancestor of S (S included)
// has renamed-value N or reserved N.
func (s *NamingState) isAvailable(proto *graph.Proto, name string) bool {
	key := proto.String()
	for cur := s; cur != nil; cur = cur.parent {
		ps, ok := cur.protos[key]
		if !ok {
			continue
		}
		if ps.reserved[name] || ps.used[name] {
			return false
		}
	}
	return true
}

// assignName proposes candidate names from dict (falling back to the
// base-26 counter) until one is available for proto at this exact state,
// then reserves it there.
func (s *NamingState) assignName(proto *graph.Proto, dict []string) string {
	ps := s.bucket(proto)
	for {
		name := dictOrCounter(dict, ps.counter)
		ps.counter++
		if s.isAvailable(proto, name) {
			s.markUsed(proto, name)
			return name
		}
	}
}

func dictOrCounter(dict []string, n int) string {
	if n < len(dict) {
		return dict[n]
	}
	return identifierFromCounter(n - len(dict))
}

// MethodNamer is the hard case spec.md §4.7.2 calls out: virtual dispatch
// couples names across unrelated classes, so renaming proceeds in four
// phases (reserve in classes, reserve in interfaces, assign interface
// methods, assign class methods) rather than one pass per class.
type MethodNamer struct {
	factory *graph.Factory
	cfg     *keepconfig.Configuration
	roots   *rootset.RootSet

	rootState  *NamingState
	classState map[*graph.Type]*NamingState
	ifaceState map[*graph.Type]*NamingState

	// sigAt remembers, per state, which erased signature already resolved
	// to which new name — the mechanism that makes an override reuse its
	// ancestor's (or joined interface's) renaming rather than picking a
	// fresh one (spec.md §4.7.2 phase 4, testable property 4).
	sigAt map[*NamingState]map[string]string

	renamed map[*graph.MethodRef]string
}

func newMethodNamer(factory *graph.Factory, cfg *keepconfig.Configuration, roots *rootset.RootSet) *MethodNamer {
	return &MethodNamer{
		factory:    factory,
		cfg:        cfg,
		roots:      roots,
		rootState:  newNamingState(nil),
		classState: map[*graph.Type]*NamingState{},
		ifaceState: map[*graph.Type]*NamingState{},
		sigAt:      map[*NamingState]map[string]string{},
		renamed:    map[*graph.MethodRef]string{},
	}
}

func skippableMethod(m *graph.EncodedMethod) bool {
	if m.AccessFlags.IsConstructor() {
		return true
	}
	name := m.Ref.Name.String()
	return name == "<init>" || name == "<clinit>"
}

// stateFor returns (creating on demand) c's per-class naming state,
// parented at its superclass's state — spec.md §4.7.2 phase 4's "a child
// state is created on demand (parented at the super-class's state)",
// generalized here to back every phase since reservation needs the same
// chain.
func (mn *MethodNamer) stateFor(c *graph.Class) *NamingState {
	if s, ok := mn.classState[c.Type]; ok {
		return s
	}
	parent := mn.rootState
	if c.Super != nil {
		if superClass, ok := mn.factory.DefinitionFor(c.Super); ok {
			parent = mn.stateFor(superClass)
		}
	}
	state := newNamingState(parent)
	mn.classState[c.Type] = state
	return state
}

func (mn *MethodNamer) recordSig(state *NamingState, sig, name string) {
	m, ok := mn.sigAt[state]
	if !ok {
		m = map[string]string{}
		mn.sigAt[state] = m
	}
	m[sig] = name
}

// lookupSig walks state's ancestor chain for an already-decided name for
// erasedSig, the lookup that lets an override inherit its ancestor's (or
// a joined interface's) renaming.
func (mn *MethodNamer) lookupSig(state *NamingState, erasedSig string) (string, bool) {
	for cur := state; cur != nil; cur = cur.parent {
		if m, ok := mn.sigAt[cur]; ok {
			if name, ok := m[erasedSig]; ok {
				return name, true
			}
		}
	}
	return "", false
}

func nearestLibraryAncestor(f *graph.Factory, c *graph.Class) (*graph.Class, bool) {
	cur := c.Super
	for cur != nil {
		def, ok := f.DefinitionFor(cur)
		if !ok {
			return nil, false
		}
		if def.Origin != graph.OriginProgram {
			return def, true
		}
		cur = def.Super
	}
	return nil, false
}

// reserveInClasses is spec.md §4.7.2 phase 1: library classes' methods
// are always reserved; a program class with a library ancestor reserves
// its own original names at that ancestor's frontier state, so every
// program subclass sharing the same library ancestor sees the
// reservation through the parent-chain walk in isAvailable.
func (mn *MethodNamer) reserveInClasses() {
	for _, c := range mn.factory.AllClasses() {
		if c.AccessFlags.IsInterface() {
			continue
		}
		state := mn.stateFor(c)
		if c.Origin != graph.OriginProgram {
			for _, m := range c.AllMethods() {
				if skippableMethod(m) {
					continue
				}
				state.reserve(m.Ref.Proto, m.Ref.Name.String())
				mn.recordSig(state, m.Ref.ErasedSignature(), m.Ref.Name.String())
			}
			continue
		}
		if lib, ok := nearestLibraryAncestor(mn.factory, c); ok {
			frontier := mn.stateFor(lib)
			for _, m := range c.AllMethods() {
				if skippableMethod(m) {
					continue
				}
				frontier.reserve(m.Ref.Proto, m.Ref.Name.String())
				mn.recordSig(frontier, m.Ref.ErasedSignature(), m.Ref.Name.String())
			}
		}
	}
}

// reserveInInterfaces is phase 2: every interface is its own frontier.
func (mn *MethodNamer) reserveInInterfaces() {
	for _, c := range mn.factory.AllClasses() {
		if !c.AccessFlags.IsInterface() {
			continue
		}
		state := newNamingState(nil)
		mn.ifaceState[c.Type] = state
		if c.Origin != graph.OriginProgram {
			for _, m := range c.AllMethods() {
				if skippableMethod(m) {
					continue
				}
				state.reserve(m.Ref.Proto, m.Ref.Name.String())
				mn.recordSig(state, m.Ref.ErasedSignature(), m.Ref.Name.String())
			}
		}
	}
}

type ifaceGroup struct {
	proto   *graph.Proto
	name    string
	states  []*NamingState
	sources []*graph.MethodRef
}

func appendStateUnique(states []*NamingState, s *NamingState) []*NamingState {
	for _, existing := range states {
		if existing == s {
			return states
		}
	}
	return append(states, s)
}

// reachableStatesForInterface gathers ic's own state, every super- and
// sub-interface's state, and the state of every class implementing any
// interface in that set (the class's own state from stateFor, not the
// state of its library frontier) (spec.md §4.7.2 phase 3).
func (mn *MethodNamer) reachableStatesForInterface(ic *graph.Type) ([]*NamingState, map[*graph.Type]bool) {
	ifaces := map[*graph.Type]bool{}
	var states []*NamingState
	var walk func(t *graph.Type)
	walk = func(t *graph.Type) {
		if ifaces[t] {
			return
		}
		ifaces[t] = true
		states = appendStateUnique(states, mn.ifaceState[t])
		if c, ok := mn.factory.DefinitionFor(t); ok {
			for _, sup := range c.Interfaces {
				walk(sup)
			}
		}
	}
	walk(ic)
	mn.factory.Subtype().ForAllImplementsSubtypes(ic, func(sub *graph.Type) bool {
		if c, ok := mn.factory.DefinitionFor(sub); ok && c.AccessFlags.IsInterface() {
			walk(sub)
		}
		return true
	})
	for _, c := range mn.factory.AllClasses() {
		if c.AccessFlags.IsInterface() {
			continue
		}
		if ifaces[c.Type] {
			continue
		}
		implements := graph.AnyImplementedInterfaceMatches(mn.factory, c, func(other *graph.Class) bool {
			return ifaces[other.Type]
		})
		if implements {
			states = appendStateUnique(states, mn.stateFor(c))
		}
	}
	return states, ifaces
}

// assignInterfaceMethods is phase 3. Signatures merge across unrelated
// interfaces purely by (name, proto) erasure, per spec.md §4.7.2's
// explicit "keyed by an erasure that merges methods sharing name+proto
// across unrelated interfaces" — no dispatch relationship is required.
func (mn *MethodNamer) assignInterfaceMethods() {
	groups := map[string]*ifaceGroup{}
	var order []string
	for _, ic := range mn.sortedInterfaceTypes() {
		c, _ := mn.factory.DefinitionFor(ic)
		if c.Origin != graph.OriginProgram {
			continue
		}
		states, _ := mn.reachableStatesForInterface(ic)
		for _, m := range c.VirtualMethods {
			if skippableMethod(m) {
				continue
			}
			sig := m.Ref.ErasedSignature()
			g, ok := groups[sig]
			if !ok {
				g = &ifaceGroup{proto: m.Ref.Proto, name: m.Ref.Name.String()}
				groups[sig] = g
				order = append(order, sig)
			}
			g.sources = append(g.sources, m.Ref)
			for _, s := range states {
				g.states = appendStateUnique(g.states, s)
			}
		}
	}
	slowcompare.SortItems(order, func(a, b string) int {
		ga, gb := groups[a], groups[b]
		if len(ga.states) != len(gb.states) {
			if len(ga.states) > len(gb.states) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	for _, sig := range order {
		g := groups[sig]
		if mn.anyReserved(g) {
			for _, s := range g.states {
				s.reserve(g.proto, g.name)
				mn.recordSig(s, sig, g.name)
			}
			continue
		}
		name := mn.proposeAcrossStates(g)
		for _, s := range g.states {
			s.markUsed(g.proto, name)
			mn.recordSig(s, sig, name)
		}
		for _, src := range g.sources {
			if name != src.Name.String() {
				mn.renamed[src] = name
			}
		}
	}
}

func (mn *MethodNamer) anyReserved(g *ifaceGroup) bool {
	for _, s := range g.states {
		if !s.isAvailable(g.proto, g.name) {
			return true
		}
	}
	return false
}

func (mn *MethodNamer) proposeAcrossStates(g *ifaceGroup) string {
	dict := mn.cfg.Dictionaries.MemberNames
	counter := 0
	for {
		name := dictOrCounter(dict, counter)
		counter++
		ok := true
		for _, s := range g.states {
			if !s.isAvailable(g.proto, name) {
				ok = false
				break
			}
		}
		if ok {
			return name
		}
	}
}

func (mn *MethodNamer) sortedInterfaceTypes() []*graph.Type {
	var out []*graph.Type
	for _, c := range mn.factory.AllClasses() {
		if c.AccessFlags.IsInterface() {
			out = append(out, c.Type)
		}
	}
	slowcompare.SortItems(out, slowcompare.Types)
	return out
}

// assignClassMethods is phase 4: top-down from Object, non-private
// methods first, then private methods (which may reuse names already
// claimed by a subclass's public methods, since a subclass's state is a
// descendant, never an ancestor, of its superclass's state).
func (mn *MethodNamer) assignClassMethods(pinned map[*graph.MethodRef]bool) {
	dict := mn.cfg.Dictionaries.MemberNames
	for _, t := range mn.sortedClassTypes() {
		c, _ := mn.factory.DefinitionFor(t)
		state := mn.stateFor(c)
		mn.assignSweep(c, state, dict, pinned, false)
		mn.assignSweep(c, state, dict, pinned, true)
	}
}

func (mn *MethodNamer) sortedClassTypes() []*graph.Type {
	var out []*graph.Type
	depth := map[*graph.Type]int{}
	for _, c := range mn.factory.AllClasses() {
		if !c.AccessFlags.IsInterface() {
			out = append(out, c.Type)
			for cur, ok := c, true; ok && cur.Super != nil; cur, ok = mn.factory.DefinitionFor(cur.Super) {
				depth[c.Type]++
			}
		}
	}
	// Superclasses before subclasses, then by descriptor.
	slowcompare.SortItems(out, func(a, b *graph.Type) int {
		if depth[a] != depth[b] {
			return depth[a] - depth[b]
		}
		return slowcompare.Types(a, b)
	})
	return out
}

func (mn *MethodNamer) assignSweep(c *graph.Class, state *NamingState, dict []string, pinned map[*graph.MethodRef]bool, privateSweep bool) {
	for _, m := range c.AllMethods() {
		if skippableMethod(m) {
			continue
		}
		if m.AccessFlags.IsPrivate() != privateSweep {
			continue
		}
		mn.assignOne(c, state, m, dict, pinned, privateSweep)
	}
}

func (mn *MethodNamer) assignOne(c *graph.Class, state *NamingState, m *graph.EncodedMethod, dict []string, pinned map[*graph.MethodRef]bool, privateSweep bool) {
	sig := m.Ref.ErasedSignature()
	original := m.Ref.Name.String()

	if pinned[m.Ref] {
		state.reserve(m.Ref.Proto, original)
		mn.recordSig(state, sig, original)
		return
	}

	if !privateSweep {
		if name, ok := mn.lookupSig(state.parent, sig); ok {
			state.markUsed(m.Ref.Proto, name)
			mn.recordSig(state, sig, name)
			if name != original {
				mn.renamed[m.Ref] = name
			}
			return
		}
	}
	if name, ok := mn.lookupSig(state, sig); ok {
		// Already decided earlier in this same sweep (e.g. by the
		// interface-joining phase writing directly into this state).
		if name != original {
			mn.renamed[m.Ref] = name
		}
		return
	}

	name := state.assignName(m.Ref.Proto, dict)
	mn.recordSig(state, sig, name)
	if name != original {
		mn.renamed[m.Ref] = name
	}
}

// Run executes all four phases and returns the method-rename map.
func (mn *MethodNamer) Run(info *enqueue.AppInfoWithLiveness) map[*graph.MethodRef]string {
	pinned := map[*graph.MethodRef]bool{}
	for item := range mn.roots.NoObfuscation {
		item.Switch(
			func(*graph.Class) {},
			func(m *graph.MethodRef) { pinned[m] = true },
			func(*graph.FieldRef) {},
		)
	}
	mn.reserveInClasses()
	mn.reserveInInterfaces()
	mn.assignInterfaceMethods()
	mn.assignClassMethods(pinned)
	return mn.renamed
}

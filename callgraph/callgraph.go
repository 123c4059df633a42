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

// Package callgraph builds the caller/callee graph over live methods,
// breaks cycles deterministically, and schedules leaf layers for the
// bottom-up method-pass driver (spec.md §4.5, §4.6).
package callgraph

import (
	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/rootset"
	"android/r8/slowcompare"
)

// Graph is the caller→callee relation over a set of live methods, plus
// the reverse-edge index needed for leaf extraction.
type Graph struct {
	factory *graph.Factory

	nodes map[*graph.MethodRef]bool
	out   map[*graph.MethodRef]map[*graph.MethodRef]bool
	in    map[*graph.MethodRef]map[*graph.MethodRef]bool

	selfRecursive map[*graph.MethodRef]bool
	breakers      map[*graph.MethodRef]map[*graph.MethodRef]bool

	callSites map[*graph.MethodRef]int

	methodByRef map[*graph.MethodRef]*graph.EncodedMethod
}

// Build constructs a call graph over every method in info.LiveMethods.
// Edges come from the invoke indices enqueue already recorded: direct
// and static invokes resolve to exactly one callee, while virtual and
// interface invokes fan out to the same dispatch targets the enqueuer
// discovered (the full potential-target set reachable via the subtype
// index, per spec.md §4.5).
func Build(factory *graph.Factory, info *enqueue.AppInfoWithLiveness) *Graph {
	g := &Graph{
		factory:       factory,
		nodes:         map[*graph.MethodRef]bool{},
		out:           map[*graph.MethodRef]map[*graph.MethodRef]bool{},
		in:            map[*graph.MethodRef]map[*graph.MethodRef]bool{},
		selfRecursive: map[*graph.MethodRef]bool{},
		breakers:      map[*graph.MethodRef]map[*graph.MethodRef]bool{},
		callSites:     map[*graph.MethodRef]int{},
		methodByRef:   map[*graph.MethodRef]*graph.EncodedMethod{},
	}
	for _, c := range factory.AllClasses() {
		for _, m := range c.AllMethods() {
			g.methodByRef[m.Ref] = m
		}
	}
	for _, m := range info.LiveMethods {
		g.nodes[m] = true
		g.out[m] = map[*graph.MethodRef]bool{}
		g.in[m] = map[*graph.MethodRef]bool{}
	}
	for _, m := range info.LiveMethods {
		g.addEdgesFor(m)
	}
	return g
}

func (g *Graph) addEdgesFor(caller *graph.MethodRef) {
	enc, ok := g.methodByRef[caller]
	if !ok || enc.Code == nil {
		return
	}
	for _, ins := range flattenInstructions(enc.Code) {
		for _, op := range ins.Operands {
			if op.Method == nil {
				continue
			}
			g.addCallees(caller, ins.Opcode, op.Method)
		}
	}
}

func (g *Graph) addCallees(caller *graph.MethodRef, op graph.Opcode, ref *graph.MethodRef) {
	switch op {
	case graph.OpInvokeDirect, graph.OpInvokeStatic:
		g.addEdge(caller, ref)
	case graph.OpInvokeVirtual, graph.OpInvokeInterface, graph.OpInvokeSuper:
		viaInterface := op == graph.OpInvokeInterface
		for _, target := range g.dispatchTargets(ref, viaInterface) {
			g.addEdge(caller, target)
		}
	}
}

// dispatchTargets mirrors enqueue.collectConcreteTargets: every live
// method, reachable from ref.Holder's extends/implements closure, whose
// erased signature matches ref.
func (g *Graph) dispatchTargets(ref *graph.MethodRef, viaInterface bool) []*graph.MethodRef {
	erased := ref.ErasedSignature()
	var out []*graph.MethodRef
	visit := func(t *graph.Type) {
		c, ok := g.factory.DefinitionFor(t)
		if !ok {
			return
		}
		if m, found := c.FindVirtualMethod(erased); found && g.nodes[m.Ref] {
			out = append(out, m.Ref)
		}
	}
	visit(ref.Holder)
	if viaInterface {
		g.factory.Subtype().ForAllImplementsSubtypes(ref.Holder, func(sub *graph.Type) bool { visit(sub); return true })
	} else {
		g.factory.Subtype().ForAllExtendsSubtypes(ref.Holder, func(sub *graph.Type) bool { visit(sub); return true })
	}
	return out
}

func (g *Graph) addEdge(caller, callee *graph.MethodRef) {
	if !g.nodes[callee] {
		return
	}
	g.callSites[callee]++
	if caller == callee {
		g.selfRecursive[caller] = true
		return
	}
	g.out[caller][callee] = true
	g.in[callee][caller] = true
}

func flattenInstructions(c *graph.Code) []graph.Instruction {
	switch c.Kind {
	case graph.CodeKindDex:
		if c.Dex == nil {
			return nil
		}
		return c.Dex.Instructions
	case graph.CodeKindIR:
		if c.IR == nil {
			return nil
		}
		var out []graph.Instruction
		for _, b := range c.IR.Blocks {
			out = append(out, b.Instructions...)
		}
		return out
	default:
		return nil
	}
}

// IsSelfRecursive reports whether m calls itself directly. Self-edges
// are recorded as a flag rather than an edge, so they never participate
// in cycle breaking or leaf extraction (spec.md §4.5).
func (g *Graph) IsSelfRecursive(m *graph.MethodRef) bool { return g.selfRecursive[m] }

// Breakers returns the callees whose edge from caller was removed by
// any BreakCycles call on g so far.
func (g *Graph) Breakers(caller *graph.MethodRef) []*graph.MethodRef {
	out := make([]*graph.MethodRef, 0, len(g.breakers[caller]))
	for callee := range g.breakers[caller] {
		out = append(out, callee)
	}
	slowcompare.SortItems(out, slowcompare.Methods)
	return out
}

type color uint8

const (
	white color = iota
	gray
	black
)

// BreakCycles performs one depth-first pass over the graph with
// (marked, on-stack) coloring; whenever a back-edge to a gray (on-stack)
// node would be formed, the edge is removed instead and recorded in
// breakers[caller]. Callees are visited in slow-compare order at every
// node, so which edge gets broken in a cycle is deterministic across
// runs (spec.md §4.5). Calling BreakCycles again over an already-broken
// graph removes zero edges — the DFS revisits every node but no edge
// can be a back-edge to a still-on-stack ancestor once the graph is
// acyclic.
func (g *Graph) BreakCycles() {
	colors := map[*graph.MethodRef]color{}
	roots := g.sortedNodes()
	for _, n := range roots {
		if colors[n] == white {
			g.visit(n, colors)
		}
	}
}

func (g *Graph) visit(n *graph.MethodRef, colors map[*graph.MethodRef]color) {
	colors[n] = gray
	for _, callee := range g.sortedCallees(n) {
		switch colors[callee] {
		case white:
			g.visit(callee, colors)
		case gray:
			g.removeEdge(n, callee)
		case black:
			// Cross/forward edge: fine, not a cycle.
		}
	}
	colors[n] = black
}

func (g *Graph) removeEdge(caller, callee *graph.MethodRef) {
	delete(g.out[caller], callee)
	delete(g.in[callee], caller)
	bucket, ok := g.breakers[caller]
	if !ok {
		bucket = map[*graph.MethodRef]bool{}
		g.breakers[caller] = bucket
	}
	bucket[callee] = true
}

func (g *Graph) sortedNodes() []*graph.MethodRef {
	out := make([]*graph.MethodRef, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	slowcompare.SortItems(out, slowcompare.Methods)
	return out
}

func (g *Graph) sortedCallees(n *graph.MethodRef) []*graph.MethodRef {
	out := make([]*graph.MethodRef, 0, len(g.out[n]))
	for c := range g.out[n] {
		out = append(out, c)
	}
	slowcompare.SortItems(out, slowcompare.Methods)
	return out
}

// LeafLayers repeatedly extracts the set of nodes with out-degree 0,
// removes them (updating reverse edges), and returns them as successive
// layers. The graph must already be acyclic (call BreakCycles first);
// otherwise a node whose every outgoing edge sits in an unbroken cycle
// is never extracted and LeafLayers terminates early having yielded
// fewer nodes than the graph has.
func (g *Graph) LeafLayers() [][]*graph.MethodRef {
	outDegree := map[*graph.MethodRef]int{}
	remaining := map[*graph.MethodRef]bool{}
	for n := range g.nodes {
		outDegree[n] = len(g.out[n])
		remaining[n] = true
	}
	var layers [][]*graph.MethodRef
	for len(remaining) > 0 {
		var layer []*graph.MethodRef
		for n := range remaining {
			if outDegree[n] == 0 {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			// Unbroken cycle reachable from here; stop rather than loop
			// forever. Callers are expected to have run BreakCycles first.
			break
		}
		slowcompare.SortItems(layer, slowcompare.Methods)
		for _, n := range layer {
			delete(remaining, n)
			for caller := range g.in[n] {
				if !remaining[caller] {
					continue
				}
				outDegree[caller]--
			}
		}
		layers = append(layers, layer)
	}
	return layers
}

// CallSiteCounts returns, for every live method, the number of distinct
// call instructions that target it (spec.md §4.6), excluding any method
// pinned by a keep rule's no-optimization set — an inliner has no
// freedom over a method the configuration forbids optimizing.
func (g *Graph) CallSiteCounts(pinned *rootset.RootSet) map[*graph.MethodRef]int {
	out := map[*graph.MethodRef]int{}
	for m, count := range g.callSites {
		if pinned != nil {
			if _, noOpt := pinned.NoOptimization[rootset.MethodItem(m)]; noOpt {
				continue
			}
		}
		out[m] = count
	}
	return out
}

// SingleCallSite and DoubleCallSite filter CallSiteCounts down to the
// methods called from exactly one or exactly two distinct call sites
// respectively — the sets spec.md §4.6 says "are used by the inliner."
func SingleCallSite(counts map[*graph.MethodRef]int) []*graph.MethodRef { return withCount(counts, 1) }
func DoubleCallSite(counts map[*graph.MethodRef]int) []*graph.MethodRef { return withCount(counts, 2) }

func withCount(counts map[*graph.MethodRef]int, n int) []*graph.MethodRef {
	var out []*graph.MethodRef
	for m, c := range counts {
		if c == n {
			out = append(out, m)
		}
	}
	slowcompare.SortItems(out, slowcompare.Methods)
	return out
}

// InlineDecision is a scheduling verdict, not an applied transformation:
// callgraph has no IR rewriter, so Inline only reports which candidates
// a real inliner would be free to process, and in what order.
type InlineDecision struct {
	Callee      *graph.MethodRef
	CallSites   int
	LeafLayer   int
	SelfRecurse bool
}

// Inline walks single/double-call-site methods in leaf-layer order
// (innermost calls first) and reports which of the supplied candidates
// would be inlining candidates. It does not rewrite any code (see
// Non-goals): it exists so call-site counting has a real, testable
// consumer instead of an inert field.
func (g *Graph) Inline(candidates map[*graph.MethodRef]bool, pinned *rootset.RootSet) []InlineDecision {
	counts := g.CallSiteCounts(pinned)
	layers := g.LeafLayers()
	layerOf := map[*graph.MethodRef]int{}
	for i, layer := range layers {
		for _, m := range layer {
			layerOf[m] = i
		}
	}
	var decisions []InlineDecision
	for m := range candidates {
		count, counted := counts[m]
		if !counted || (count != 1 && count != 2) {
			continue
		}
		decisions = append(decisions, InlineDecision{
			Callee:      m,
			CallSites:   count,
			LeafLayer:   layerOf[m],
			SelfRecurse: g.selfRecursive[m],
		})
	}
	slowcompare.SortItems(decisions, func(a, b InlineDecision) int {
		if a.LeafLayer != b.LeafLayer {
			if a.LeafLayer < b.LeafLayer {
				return -1
			}
			return 1
		}
		return slowcompare.Methods(a.Callee, b.Callee)
	})
	return decisions
}

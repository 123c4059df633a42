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

package callgraph

import (
	"testing"

	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defineMethod creates a class with a single direct method whose body
// invoke-directs every method ref in calls, in order.
func defineMethod(f *graph.Factory, className, methodName string, proto *graph.Proto, calls ...*graph.MethodRef) (*graph.Class, *graph.MethodRef) {
	holder := f.CreateType("L" + className + ";")
	ref := f.CreateMethod(holder, f.CreateString(methodName), proto)

	var instructions []graph.Instruction
	for _, callee := range calls {
		instructions = append(instructions, graph.Instruction{
			Opcode:   graph.OpInvokeDirect,
			Operands: []graph.Operand{{Method: callee}},
		})
	}
	c := &graph.Class{
		Type:        holder,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		DirectMethods: []*graph.EncodedMethod{{
			Ref:         ref,
			AccessFlags: graph.AccPublic,
			Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{
				Blocks: []*graph.BasicBlock{{Instructions: instructions}},
			}},
		}},
	}
	f.Define(c)
	return c, ref
}

// buildCycle realizes spec.md §8 testable property D: a 4-node cycle
// a→b→c→d→a in the call graph, joined by direct invokes so every node is
// live without needing dispatch resolution: A is kept, and B, C and D
// become live through the chain from A.
func buildCycle(t *testing.T) (*graph.Factory, *enqueue.AppInfoWithLiveness) {
	t.Helper()
	f := graph.NewFactory()
	void := f.CreateType("V")
	proto := f.CreateProto(void, nil)

	// Forward-declare method refs so each body can call the next one
	// before that class is defined.
	aHolder := f.CreateType("LA;")
	bHolder := f.CreateType("LB;")
	cHolder := f.CreateType("LC;")
	dHolder := f.CreateType("LD;")
	aRef := f.CreateMethod(aHolder, f.CreateString("run"), proto)
	bRef := f.CreateMethod(bHolder, f.CreateString("run"), proto)
	cRef := f.CreateMethod(cHolder, f.CreateString("run"), proto)
	dRef := f.CreateMethod(dHolder, f.CreateString("run"), proto)

	defineMethod(f, "A", "run", proto, bRef)
	defineMethod(f, "B", "run", proto, cRef)
	defineMethod(f, "C", "run", proto, dRef)
	defineMethod(f, "D", "run", proto, aRef)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class A { *; }"))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := enqueue.New(f, roots, nil, false)
	info, err := e.Run()
	require.NoError(t, err)
	// Make sure all four nodes are in LiveMethods, whatever the order
	// the enqueuer recorded them in.
	for _, ref := range []*graph.MethodRef{aRef, bRef, cRef, dRef} {
		info.LiveMethods = appendIfMissing(info.LiveMethods, ref)
	}
	return f, info
}

func appendIfMissing(s []*graph.MethodRef, m *graph.MethodRef) []*graph.MethodRef {
	for _, x := range s {
		if x == m {
			return s
		}
	}
	return append(s, m)
}

func TestBreakCyclesRemovesExactlyOneEdge(t *testing.T) {
	f, info := buildCycle(t)
	g := Build(f, info)
	g.BreakCycles()

	totalBreakers := 0
	for _, bucket := range g.breakers {
		totalBreakers += len(bucket)
	}
	assert.Equal(t, 1, totalBreakers, "a 4-node cycle should need exactly one edge removed")
}

func TestBreakCyclesIsIdempotent(t *testing.T) {
	f, info := buildCycle(t)
	g := Build(f, info)
	g.BreakCycles()
	firstCount := 0
	for _, bucket := range g.breakers {
		firstCount += len(bucket)
	}

	g.BreakCycles()
	secondCount := 0
	for _, bucket := range g.breakers {
		secondCount += len(bucket)
	}
	assert.Equal(t, firstCount, secondCount, "running BreakCycles a second time must not remove any more edges")
}

func TestLeafLayersYieldsAllFourNodesAfterBreakingCycle(t *testing.T) {
	f, info := buildCycle(t)
	g := Build(f, info)
	g.BreakCycles()

	layers := g.LeafLayers()
	var total int
	for _, layer := range layers {
		total += len(layer)
	}
	assert.Equal(t, 4, total, "leaf iteration should yield all four methods once the cycle is broken")
}

func TestCallSiteCountsExcludesPinnedMethods(t *testing.T) {
	f := graph.NewFactory()
	void := f.CreateType("V")
	proto := f.CreateProto(void, nil)

	_, leafRef := defineMethod(f, "Leaf", "run", proto)
	_, pinnedRef := defineMethod(f, "Pinned", "run", proto)
	defineMethod(f, "Caller", "run", proto, leafRef, pinnedRef)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", `
		-keep class Caller { *; }
		-keepclasseswithmembers,allowshrinking,allowobfuscation,allowoptimization class Leaf {
			public void run();
		}
		-keepclasseswithmembers,allowshrinking,allowobfuscation class Pinned {
			public void run();
		}
	`))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := enqueue.New(f, roots, nil, false)
	info, err := e.Run()
	require.NoError(t, err)
	info.LiveMethods = appendIfMissing(info.LiveMethods, leafRef)
	info.LiveMethods = appendIfMissing(info.LiveMethods, pinnedRef)

	g := Build(f, info)
	counts := g.CallSiteCounts(roots)
	_, pinnedPresent := counts[pinnedRef]
	assert.False(t, pinnedPresent, "Pinned.run is excluded from optimization and must not be counted")
	_, present := counts[leafRef]
	assert.True(t, present, "Leaf.run allows optimization and should be counted")
	assert.Equal(t, 1, counts[leafRef])
}

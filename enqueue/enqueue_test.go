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

package enqueue

import (
	"testing"

	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFooBar realizes spec.md §8 scenario A:
//
//	class Foo { void a(){} void b(){} }
//	class Bar extends Foo { void a(){} }
func buildFooBar(f *graph.Factory) (foo, bar *graph.Class, fooA, fooB, barA *graph.MethodRef) {
	void := f.CreateType("V")
	proto := f.CreateProto(void, nil)

	fooType := f.CreateType("LFoo;")
	barType := f.CreateType("LBar;")
	aName := f.CreateString("a")
	bName := f.CreateString("b")

	fooA = f.CreateMethod(fooType, aName, proto)
	fooB = f.CreateMethod(fooType, bName, proto)
	barA = f.CreateMethod(barType, aName, proto)

	foo = &graph.Class{
		Type:        fooType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		VirtualMethods: []*graph.EncodedMethod{
			{Ref: fooA, AccessFlags: graph.AccPublic, Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{}}},
			{Ref: fooB, AccessFlags: graph.AccPublic, Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{}}},
		},
	}
	bar = &graph.Class{
		Type:        barType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		Super:       fooType,
		VirtualMethods: []*graph.EncodedMethod{
			{Ref: barA, AccessFlags: graph.AccPublic, Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{}}},
		},
	}
	f.Define(foo)
	f.Define(bar)
	return foo, bar, fooA, fooB, barA
}

// buildThreeLevelHierarchy builds Object-rooted A <- B <- C, where B
// overrides A's only virtual method and C adds no override of its own:
//
//	class A        { void foo(){} }
//	class B extends A { void foo(){} } // shadows A.foo
//	class C extends B {}               // dispatches to B.foo
//
// Driver.run() invoke-virtuals A.foo (which resolves to both A.foo and
// B.foo as concrete dispatch targets) and invoke-statics Helper.make,
// whose only instruction is "new C". Keeping run() via -keepclassmembers
// (never -keep) means Driver itself is never a NoShrinking root, so
// Helper.make only goes live once run()'s code is processed — letting
// the two tests below control whether C's instantiation event is drained
// before or after the reachable-virtual events run()'s invoke-virtual
// produces.
func buildThreeLevelHierarchy(f *graph.Factory) (a, b, c, driver, helper *graph.Class, aFoo, bFoo, driverRun, helperMake *graph.MethodRef) {
	void := f.CreateType("V")
	proto := f.CreateProto(void, nil)

	aType := f.CreateType("LA;")
	bType := f.CreateType("LB;")
	cType := f.CreateType("LC;")
	driverType := f.CreateType("LDriver;")
	helperType := f.CreateType("LHelper;")

	fooName := f.CreateString("foo")
	runName := f.CreateString("run")
	makeName := f.CreateString("make")

	aFoo = f.CreateMethod(aType, fooName, proto)
	bFoo = f.CreateMethod(bType, fooName, proto)
	driverRun = f.CreateMethod(driverType, runName, proto)
	helperMake = f.CreateMethod(helperType, makeName, proto)

	a = &graph.Class{
		Type:        aType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		VirtualMethods: []*graph.EncodedMethod{
			{Ref: aFoo, AccessFlags: graph.AccPublic, Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{}}},
		},
	}
	b = &graph.Class{
		Type:        bType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		Super:       aType,
		VirtualMethods: []*graph.EncodedMethod{
			{Ref: bFoo, AccessFlags: graph.AccPublic, Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{}}},
		},
	}
	c = &graph.Class{
		Type:        cType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		Super:       bType,
	}
	driver = &graph.Class{
		Type:        driverType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		VirtualMethods: []*graph.EncodedMethod{
			{
				Ref:         driverRun,
				AccessFlags: graph.AccPublic,
				Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{Blocks: []*graph.BasicBlock{{
					Instructions: []graph.Instruction{
						{Opcode: graph.OpInvokeVirtual, Operands: []graph.Operand{{Method: aFoo}}},
						{Opcode: graph.OpInvokeStatic, Operands: []graph.Operand{{Method: helperMake}}},
					},
				}}}},
			},
		},
	}
	helper = &graph.Class{
		Type:        helperType,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		DirectMethods: []*graph.EncodedMethod{
			{
				Ref:         helperMake,
				AccessFlags: graph.AccPublic | graph.AccStatic,
				Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{Blocks: []*graph.BasicBlock{{
					Instructions: []graph.Instruction{
						{Opcode: graph.OpNew, Operands: []graph.Operand{{Type: cType}}},
					},
				}}}},
			},
		},
	}
	f.Define(a)
	f.Define(b)
	f.Define(c)
	f.Define(driver)
	f.Define(helper)
	return a, b, c, driver, helper, aFoo, bFoo, driverRun, helperMake
}

// TestRunShadowedAncestorStaysDeadAcrossThreeLevels exercises
// transitionMethodsForInstantiatedClass's shadow check: C is only
// instantiated once Driver.run() is already live and has recorded
// reachable-virtual entries for both A.foo and B.foo, so the promotion
// happens via the instantiated-class transition, not the deferred
// subtype walk in markReachableVirtual. B's override must shadow A's
// from C's point of view: B.foo goes live, A.foo must not.
func TestRunShadowedAncestorStaysDeadAcrossThreeLevels(t *testing.T) {
	f := graph.NewFactory()
	_, _, c, _, _, aFoo, bFoo, driverRun, helperMake := buildThreeLevelHierarchy(f)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keepclassmembers class Driver { *; }"))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := New(f, roots, nil, false)
	info, err := e.Run()
	require.NoError(t, err)

	assert.Contains(t, info.InstantiatedTypes, c.Type)
	assert.Contains(t, info.LiveMethods, driverRun)
	assert.Contains(t, info.LiveMethods, helperMake)
	assert.Contains(t, info.LiveMethods, bFoo, "C inherits B's override, so B.foo must be live")
	assert.NotContains(t, info.LiveMethods, aFoo, "B's override shadows A.foo for every instantiated subtype of B")
}

// TestRunInstantiateBeforeResolvePromotesInheritedVirtual covers the
// opposite ordering: C is kept (and so instantiated) directly by its own
// rule, in the same seed batch as Driver.run(), and evMarkInstantiated
// always sorts before evMarkReachableVirtual within a batch — so by the
// time run()'s invoke-virtual records the reachable-virtual entry for
// B.foo, C is already instantiated. B.foo must still end up live: a
// subtype being instantiated before the matching invoke-virtual resolves
// must not silently drop the method the subtype actually calls.
func TestRunInstantiateBeforeResolvePromotesInheritedVirtual(t *testing.T) {
	f := graph.NewFactory()
	_, _, c, _, _, aFoo, bFoo, driverRun, _ := buildThreeLevelHierarchy(f)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", `
		-keep class C { *; }
		-keepclassmembers class Driver { *; }
	`))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := New(f, roots, nil, false)
	info, err := e.Run()
	require.NoError(t, err)

	assert.Contains(t, info.InstantiatedTypes, c.Type)
	assert.Contains(t, info.LiveMethods, driverRun)
	assert.Contains(t, info.LiveMethods, bFoo, "C was already instantiated when B.foo's reachable-virtual entry was recorded")
	assert.NotContains(t, info.LiveMethods, aFoo, "B still shadows A.foo even though C resolved late")
}

func TestRunKeepsSupertypeButNotUncalledSuperMethods(t *testing.T) {
	f := graph.NewFactory()
	_, bar, fooA, fooB, barA := buildFooBar(f)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class Bar { *; }"))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := New(f, roots, nil, false)
	info, err := e.Run()
	require.NoError(t, err)

	assert.Contains(t, info.LiveTypes, bar.Super)
	assert.Contains(t, info.InstantiatedTypes, bar.Type)

	assert.NotContains(t, info.LiveMethods, fooB, "Foo.b is never called and should not be live")
	assert.NotContains(t, info.LiveMethods, fooA, "nothing in this synthetic program dispatches to Foo.a")
	assert.Contains(t, info.LiveMethods, barA)
}

func TestRunMissingReferenceIsWarningByDefault(t *testing.T) {
	f := graph.NewFactory()
	void := f.CreateType("V")
	proto := f.CreateProto(void, nil)
	holder := f.CreateType("LHas;")
	name := f.CreateString("run")
	m := f.CreateMethod(holder, name, proto)
	c := &graph.Class{
		Type:        holder,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		VirtualMethods: []*graph.EncodedMethod{
			{
				Ref:         m,
				AccessFlags: graph.AccPublic,
				Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{Blocks: []*graph.BasicBlock{{
					Instructions: []graph.Instruction{{
						Opcode:   graph.OpInvokeVirtual,
						Operands: []graph.Operand{{Method: f.CreateMethod(f.CreateType("LGone;"), f.CreateString("x"), proto)}},
					}},
				}}}},
			},
		},
	}
	f.Define(c)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class Has { *; }"))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := New(f, roots, nil, false)
	info, err := e.Run()
	require.NoError(t, err)
	assert.NotEmpty(t, info.Warnings)
}

func TestRunStrictModeFailsOnMissingReference(t *testing.T) {
	f := graph.NewFactory()
	void := f.CreateType("V")
	proto := f.CreateProto(void, nil)
	holder := f.CreateType("LHas;")
	name := f.CreateString("run")
	m := f.CreateMethod(holder, name, proto)
	c := &graph.Class{
		Type:        holder,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		VirtualMethods: []*graph.EncodedMethod{
			{
				Ref:         m,
				AccessFlags: graph.AccPublic,
				Code: &graph.Code{Kind: graph.CodeKindIR, IR: &graph.IRCode{Blocks: []*graph.BasicBlock{{
					Instructions: []graph.Instruction{{
						Opcode:   graph.OpInvokeVirtual,
						Operands: []graph.Operand{{Method: f.CreateMethod(f.CreateType("LGone;"), f.CreateString("x"), proto)}},
					}},
				}}}},
			},
		},
	}
	f.Define(c)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class Has { *; }"))
	require.NoError(t, err)
	roots, err := rootset.Build(f, cfg, nil, false)
	require.NoError(t, err)

	e := New(f, roots, nil, true)
	_, err = e.Run()
	require.Error(t, err)
}

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
	"testing"

	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func virtualMethod(f *graph.Factory, holder *graph.Type, name string, flags graph.AccessFlags) *graph.EncodedMethod {
	proto := f.CreateProto(f.CreateType("V"), nil)
	ref := f.CreateMethod(holder, f.CreateString(name), proto)
	return &graph.EncodedMethod{Ref: ref, AccessFlags: flags | graph.AccPublic}
}

func defClass(f *graph.Factory, name, super string, origin graph.Origin, ifaces []string, virtual ...*graph.EncodedMethod) *graph.Class {
	t := f.CreateType("L" + name + ";")
	var superType *graph.Type
	if super != "" {
		superType = f.CreateType("L" + super + ";")
	}
	var ifaceTypes []*graph.Type
	for _, i := range ifaces {
		ifaceTypes = append(ifaceTypes, f.CreateType("L"+i+";"))
	}
	c := &graph.Class{
		Type:           t,
		Origin:         origin,
		AccessFlags:    graph.AccPublic,
		Super:          superType,
		Interfaces:     ifaceTypes,
		VirtualMethods: virtual,
	}
	f.Define(c)
	return c
}

func emptyCfg() *keepconfig.Configuration {
	return &keepconfig.Configuration{Obfuscate: true}
}

func TestMethodNamerReusesNameAcrossOverride(t *testing.T) {
	f := graph.NewFactory()
	object := f.CreateType("Ljava/lang/Object;")
	f.Define(&graph.Class{Type: object, Origin: graph.OriginLibrary})

	base := defClass(f, "com/foo/Base", "java/lang/Object", graph.OriginProgram, nil)
	baseMethod := virtualMethod(f, base.Type, "frobnicate", 0)
	base.VirtualMethods = []*graph.EncodedMethod{baseMethod}

	derived := defClass(f, "com/foo/Derived", "com/foo/Base", graph.OriginProgram, nil)
	derivedMethod := virtualMethod(f, derived.Type, "frobnicate", 0)
	derived.VirtualMethods = []*graph.EncodedMethod{derivedMethod}

	roots := &rootset.RootSet{NoObfuscation: map[rootset.Item]rootset.KeepReason{}}
	mn := newMethodNamer(f, emptyCfg(), roots)
	renamed := mn.Run(&enqueue.AppInfoWithLiveness{})

	baseName, baseOk := renamed[baseMethod.Ref]
	derivedName, derivedOk := renamed[derivedMethod.Ref]
	require.True(t, baseOk)
	require.True(t, derivedOk)
	assert.Equal(t, baseName, derivedName)
	assert.NotEqual(t, "frobnicate", baseName)
}

func TestMethodNamerKeepsLibraryOverrideName(t *testing.T) {
	f := graph.NewFactory()
	object := f.CreateType("Ljava/lang/Object;")
	f.Define(&graph.Class{Type: object, Origin: graph.OriginLibrary})

	libMethod := virtualMethod(f, f.CreateType("Landroid/view/View;"), "onDraw", 0)
	lib := defClass(f, "android/view/View", "java/lang/Object", graph.OriginLibrary, nil, libMethod)
	_ = lib

	prog := defClass(f, "com/foo/MyView", "android/view/View", graph.OriginProgram, nil)
	progMethod := virtualMethod(f, prog.Type, "onDraw", 0)
	prog.VirtualMethods = []*graph.EncodedMethod{progMethod}

	roots := &rootset.RootSet{NoObfuscation: map[rootset.Item]rootset.KeepReason{}}
	mn := newMethodNamer(f, emptyCfg(), roots)
	renamed := mn.Run(&enqueue.AppInfoWithLiveness{})

	_, renamedOk := renamed[progMethod.Ref]
	assert.False(t, renamedOk, "override of a library method must keep its original name")
}

func TestMethodNamerJoinsUnrelatedInterfaces(t *testing.T) {
	f := graph.NewFactory()
	object := f.CreateType("Ljava/lang/Object;")
	f.Define(&graph.Class{Type: object, Origin: graph.OriginLibrary})

	m1 := virtualMethod(f, f.CreateType("Lcom/foo/IfaceA;"), "run", graph.AccAbstract)
	ifaceA := defClass(f, "com/foo/IfaceA", "", graph.OriginProgram, nil, m1)
	ifaceA.AccessFlags |= graph.AccInterface

	m2 := virtualMethod(f, f.CreateType("Lcom/foo/IfaceB;"), "run", graph.AccAbstract)
	ifaceB := defClass(f, "com/foo/IfaceB", "", graph.OriginProgram, nil, m2)
	ifaceB.AccessFlags |= graph.AccInterface

	roots := &rootset.RootSet{NoObfuscation: map[rootset.Item]rootset.KeepReason{}}
	mn := newMethodNamer(f, emptyCfg(), roots)
	renamed := mn.Run(&enqueue.AppInfoWithLiveness{})

	n1, ok1 := renamed[m1.Ref]
	n2, ok2 := renamed[m2.Ref]
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, n1, n2)
}

func TestMethodNamerHonorsNoObfuscationPin(t *testing.T) {
	f := graph.NewFactory()
	object := f.CreateType("Ljava/lang/Object;")
	f.Define(&graph.Class{Type: object, Origin: graph.OriginLibrary})

	base := defClass(f, "com/foo/Pinned", "java/lang/Object", graph.OriginProgram, nil)
	pinnedMethod := virtualMethod(f, base.Type, "serialize", 0)
	base.VirtualMethods = []*graph.EncodedMethod{pinnedMethod}

	roots := &rootset.RootSet{NoObfuscation: map[rootset.Item]rootset.KeepReason{
		rootset.MethodItem(pinnedMethod.Ref): {},
	}}
	mn := newMethodNamer(f, emptyCfg(), roots)
	renamed := mn.Run(&enqueue.AppInfoWithLiveness{})

	_, ok := renamed[pinnedMethod.Ref]
	assert.False(t, ok)
}

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

package rootset

import (
	"testing"

	"android/r8/graph"
	"android/r8/keepconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defineClass(f *graph.Factory, name string, super string, ifaces ...string) *graph.Class {
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
		Type:        t,
		Origin:      graph.OriginProgram,
		AccessFlags: graph.AccPublic,
		Super:       superType,
		Interfaces:  ifaceTypes,
	}
	f.Define(c)
	return c
}

func TestBuildKeepMarksClassNoShrinking(t *testing.T) {
	f := graph.NewFactory()
	defineClass(f, "com/foo/Bar", "java/lang/Object")

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class com.foo.Bar"))
	require.NoError(t, err)

	rs, err := Build(f, cfg, nil, false)
	require.NoError(t, err)

	bar, ok := f.DefinitionFor(f.CreateType("Lcom/foo/Bar;"))
	require.True(t, ok)
	_, kept := rs.NoShrinking[ClassItem(bar)]
	assert.True(t, kept)
}

func TestBuildExtendsClauseWarnsOnMismatchedRelation(t *testing.T) {
	f := graph.NewFactory()
	defineClass(f, "android/app/Activity", "java/lang/Object")
	defineClass(f, "com/foo/MainActivity", "android/app/Activity")

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class * implements android.app.Activity"))
	require.NoError(t, err)

	rs, err := Build(f, cfg, nil, false)
	require.NoError(t, err)

	main, ok := f.DefinitionFor(f.CreateType("Lcom/foo/MainActivity;"))
	require.True(t, ok)
	_, kept := rs.NoShrinking[ClassItem(main)]
	assert.True(t, kept, "extends-relation should still satisfy an implements clause, with a warning")
	assert.Len(t, rs.Warnings, 1)
}

func TestBuildKeepClassMembersDoesNotKeepClassItself(t *testing.T) {
	f := graph.NewFactory()
	c := defineClass(f, "com/foo/Bar", "java/lang/Object")
	name := f.CreateString("run")
	proto := f.CreateProto(f.CreateType("V"), nil)
	m := f.CreateMethod(c.Type, name, proto)
	c.VirtualMethods = append(c.VirtualMethods, &graph.EncodedMethod{Ref: m, AccessFlags: graph.AccPublic})

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", `
		-keepclassmembers class com.foo.Bar {
			public void run();
		}
	`))
	require.NoError(t, err)

	rs, err := Build(f, cfg, nil, false)
	require.NoError(t, err)

	_, classKept := rs.NoShrinking[ClassItem(c)]
	assert.False(t, classKept)
	_, methodKept := rs.NoShrinking[MethodItem(m)]
	assert.True(t, methodKept)
}

func TestBuildIncludeDescriptorClassesAddsDependentNoShrinking(t *testing.T) {
	f := graph.NewFactory()
	arg := defineClass(f, "com/foo/Arg", "java/lang/Object")
	holder := defineClass(f, "com/foo/Bar", "java/lang/Object")
	name := f.CreateString("run")
	proto := f.CreateProto(f.CreateType("V"), []*graph.Type{arg.Type})
	m := f.CreateMethod(holder.Type, name, proto)
	holder.VirtualMethods = append(holder.VirtualMethods, &graph.EncodedMethod{Ref: m, AccessFlags: graph.AccPublic})

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", `
		-keep,includedescriptorclasses class com.foo.Bar {
			public void run(com.foo.Arg);
		}
	`))
	require.NoError(t, err)

	rs, err := Build(f, cfg, nil, false)
	require.NoError(t, err)

	deps, ok := rs.DependentNoShrinking[MethodItem(m)]
	require.True(t, ok)
	_, present := deps[ClassItem(arg)]
	assert.True(t, present)
}

func TestBuildSkipsLibraryClassesByDefault(t *testing.T) {
	f := graph.NewFactory()
	t2 := f.CreateType("Lcom/foo/Lib;")
	c := &graph.Class{Type: t2, Origin: graph.OriginLibrary, AccessFlags: graph.AccPublic}
	f.Define(c)

	cfg, err := keepconfig.Parse(keepconfig.Source("test.pro", "-keep class com.foo.Lib"))
	require.NoError(t, err)

	rs, err := Build(f, cfg, nil, false)
	require.NoError(t, err)
	_, kept := rs.NoShrinking[ClassItem(c)]
	assert.False(t, kept)
}

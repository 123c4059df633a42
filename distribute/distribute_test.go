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

package distribute

import (
	"errors"
	"testing"

	"android/r8/compileerror"
	"android/r8/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classWithMethods(f *graph.Factory, name string, methodCount int) *graph.Class {
	t := f.CreateType("L" + name + ";")
	voidT := f.CreateType("V")
	var virtual []*graph.EncodedMethod
	for i := 0; i < methodCount; i++ {
		proto := f.CreateProto(voidT, []*graph.Type{f.CreateType("I")})
		ref := f.CreateMethod(t, f.CreateString(methodName(i)), proto)
		virtual = append(virtual, &graph.EncodedMethod{Ref: ref, AccessFlags: graph.AccPublic})
	}
	c := &graph.Class{Type: t, Origin: graph.OriginProgram, AccessFlags: graph.AccPublic, VirtualMethods: virtual}
	f.Define(c)
	return c
}

func methodName(i int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return "m" + string(alphabet[i%26]) + string(rune('0'+i/26))
}

func TestDistributeFillFilesOpensNewFileWhenFull(t *testing.T) {
	f := graph.NewFactory()
	var classes []*graph.Class
	for i := 0; i < 5; i++ {
		classes = append(classes, classWithMethods(f, "com/foo/C"+string(rune('A'+i)), 20000))
	}
	plan, err := Distribute(classes, Options{Mode: FillFiles})
	require.NoError(t, err)
	assert.Greater(t, len(plan.Files), 1)
	for i, file := range plan.Files {
		assert.Equal(t, i, file.ID)
		assert.LessOrEqual(t, file.MethodRefCount(), MaxReferences)
	}
}

func TestDistributeMonoDexFailsOverCapacity(t *testing.T) {
	f := graph.NewFactory()
	var classes []*graph.Class
	for i := 0; i < 4; i++ {
		classes = append(classes, classWithMethods(f, "com/foo/Big"+string(rune('A'+i)), 20000))
	}
	_, err := Distribute(classes, Options{Mode: MonoDex})
	require.Error(t, err)
	var cerr *compileerror.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, compileerror.KindCapacity, cerr.Kind)
}

func TestDistributeFillFilesKeepsMainDexRootsInPrimary(t *testing.T) {
	f := graph.NewFactory()
	root := classWithMethods(f, "com/foo/Root", 3)
	other := classWithMethods(f, "com/foo/Other", 3)

	plan, err := Distribute([]*graph.Class{other, root}, Options{
		Mode:         FillFiles,
		MainDexRoots: map[string]bool{"com/foo/Root": true},
	})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Files)
	assert.Contains(t, plan.Files[0].Classes, root)
}

func TestDistributeFilePerClassOneFileEach(t *testing.T) {
	f := graph.NewFactory()
	a := classWithMethods(f, "com/foo/A", 1)
	b := classWithMethods(f, "com/foo/B", 1)
	plan, err := Distribute([]*graph.Class{a, b}, Options{Mode: FilePerClass})
	require.NoError(t, err)
	require.Len(t, plan.Files, 2)
	assert.Len(t, plan.Files[0].Classes, 1)
	assert.Len(t, plan.Files[1].Classes, 1)
}

func TestDistributePlanIDsAreContiguous(t *testing.T) {
	f := graph.NewFactory()
	var classes []*graph.Class
	for i := 0; i < 3; i++ {
		classes = append(classes, classWithMethods(f, "com/foo/X"+string(rune('A'+i)), 20000))
	}
	plan, err := Distribute(classes, Options{Mode: FillFiles})
	require.NoError(t, err)
	for i, file := range plan.Files {
		assert.Equal(t, i, file.ID)
		assert.NotEmpty(t, file.Classes)
	}
}

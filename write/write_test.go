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

package write

import (
	"context"
	"strings"
	"testing"

	"android/r8/distribute"
	"android/r8/graph"
	"android/r8/rename"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEncoder struct{ calls int }

func (e *fakeEncoder) EncodeDex(factory *graph.Factory, lens graph.Lens, classes []*graph.Class, minAPI int) ([]byte, error) {
	e.calls++
	return []byte{byte(len(classes))}, nil
}

func TestDriverWriteEncodesEveryFile(t *testing.T) {
	f := graph.NewFactory()
	a := &graph.Class{Type: f.CreateType("Lcom/foo/A;"), Origin: graph.OriginProgram}
	b := &graph.Class{Type: f.CreateType("Lcom/foo/B;"), Origin: graph.OriginProgram}
	f.Define(a)
	f.Define(b)

	plan, err := distribute.Distribute([]*graph.Class{a, b}, distribute.Options{Mode: distribute.FilePerClass})
	require.NoError(t, err)

	enc := &fakeEncoder{}
	driver := &Driver{Factory: f, Lens: &rename.Lens{}, Encoder: enc, MinAPI: 21}
	result, err := driver.Write(context.Background(), []*graph.Class{a, b}, plan, true)
	require.NoError(t, err)
	assert.Equal(t, 2, enc.calls)
	require.Len(t, result.DexFiles, 2)
	for _, bytes := range result.DexFiles {
		assert.NotEmpty(t, bytes)
	}
	assert.Contains(t, result.MainDexList, "com/foo/A.class")
	// FilePerClass puts B in the second DEX, outside the primary list.
	assert.NotContains(t, result.MainDexList, "com/foo/B.class")
}

func TestDriverBuildRenameMapOnlyListsRenamedMethods(t *testing.T) {
	f := graph.NewFactory()
	holder := f.CreateType("Lcom/foo/Bar;")
	voidT := f.CreateType("V")
	method := f.CreateMethod(holder, f.CreateString("doStuff"), f.CreateProto(voidT, nil))
	c := &graph.Class{Type: holder, Origin: graph.OriginProgram, VirtualMethods: []*graph.EncodedMethod{
		{Ref: method, AccessFlags: graph.AccPublic},
	}}
	f.Define(c)

	lens := &rename.Lens{}
	driver := &Driver{Factory: f, Lens: lens, Encoder: &fakeEncoder{}, MinAPI: 21}
	renameMap := driver.buildRenameMap([]*graph.Class{c})
	assert.True(t, strings.HasPrefix(renameMap, "com.foo.Bar -> com.foo.Bar:\n"))
	assert.NotContains(t, renameMap, "doStuff")
}

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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTypeIsIdempotent(t *testing.T) {
	f := NewFactory()
	a := f.CreateType("Lcom/foo/Bar;")
	b := f.CreateType("Lcom/foo/Bar;")
	assert.Same(t, a, b)
	assert.True(t, a.IsClass())
	assert.False(t, a.IsArray())
}

func TestCreateTypeClassifiesArraysAndPrimitives(t *testing.T) {
	f := NewFactory()
	arr := f.CreateType("[Lcom/foo/Bar;")
	assert.True(t, arr.IsArray())
	prim := f.CreateType("I")
	assert.True(t, prim.IsPrimitive())
}

func TestCreateMethodDistinguishesOverloads(t *testing.T) {
	f := NewFactory()
	holder := f.CreateType("Lcom/foo/Bar;")
	name := f.CreateString("frob")
	voidT := f.CreateType("V")
	intT := f.CreateType("I")

	m1 := f.CreateMethod(holder, name, f.CreateProto(voidT, nil))
	m2 := f.CreateMethod(holder, name, f.CreateProto(voidT, []*Type{intT}))
	assert.NotSame(t, m1, m2)
	assert.NotEqual(t, m1.ErasedSignature(), m2.ErasedSignature())

	m1Again := f.CreateMethod(holder, name, f.CreateProto(voidT, nil))
	assert.Same(t, m1, m1Again)
}

func TestDefinitionForIsRecoverableWhenMissing(t *testing.T) {
	f := NewFactory()
	missing := f.CreateType("Lcom/foo/Missing;")
	_, ok := f.DefinitionFor(missing)
	assert.False(t, ok)
}

func TestSubtypeIndexDirectExtends(t *testing.T) {
	f := NewFactory()
	object := f.CreateType("Ljava/lang/Object;")
	base := f.CreateType("Lcom/foo/Base;")
	derived := f.CreateType("Lcom/foo/Derived;")

	f.Define(&Class{Type: base, Super: object})
	f.Define(&Class{Type: derived, Super: base})

	subs := f.Subtype().DirectExtendsSubtypes(base)
	require.Len(t, subs, 1)
	assert.Same(t, derived, subs[0])

	var all []*Type
	f.Subtype().ForAllExtendsSubtypes(object, func(t *Type) bool {
		all = append(all, t)
		return true
	})
	assert.ElementsMatch(t, []*Type{base, derived}, all)
}

func TestSortIsOneShot(t *testing.T) {
	f := NewFactory()
	require.NoError(t, f.Sort(noopLens{}))
	assert.Error(t, f.Sort(noopLens{}))
}

type noopLens struct{}

func (noopLens) RenamedType(t *Type) string           { return t.String() }
func (noopLens) RenamedMethodName(m *MethodRef) string { return m.Name.String() }

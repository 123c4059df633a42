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

// Package codec describes the boundary spec.md §1 draws around the
// classfile/DEX binary codecs, zip/jar I/O, and the out-of-process
// pieces this module treats as "external collaborators with a
// described interface only" — it models the shape of those handoffs
// without performing them.
package codec

import (
	"android/r8/graph"

	"github.com/google/blueprint"
)

// Reader demultiplexes an input archive or file by extension/signature
// (spec.md §6: ".class, .dex, .jar, .zip, .apk") and populates factory
// with the classes it finds. A real implementation shells out to (or
// links) the actual classfile/DEX parser; this interface is the
// contract the rest of the pipeline depends on.
type Reader interface {
	ReadInto(factory *graph.Factory, path string, origin graph.Origin) error
}

// ExternalTool describes one out-of-process codec invocation the
// application writer driver (spec.md §4.9) would hand off — a DEX
// encode, a classfile decode, a zip assembly — without this module
// actually invoking a subprocess. It embeds blueprint.RuleParams, the
// teacher's own build-rule description type (java/dex.go's d8/r8
// MultiCommandRemoteStaticRules), repurposed here as documentation of
// the external-collaborator boundary rather than a build-graph node.
type ExternalTool struct {
	blueprint.RuleParams

	// DexID identifies which virtual DEX file this invocation produces,
	// -1 for tools that aren't per-DEX (a classfile reader, for one).
	DexID int

	Inputs  []string
	Outputs []string
}

// PlanDexEncode describes the d8/r8-style invocation that would encode
// classNames (internal names, "pkg/Name") belonging to dexID into
// outPath, grounded on java/dex.go's d8/r8 blueprint.RuleParams rules
// and generalized from a Soong build rule into a plain description. The
// command only runs the codec; zipping the result is described
// separately by PlanZipAssembly.
func PlanDexEncode(dexID int, classNames []string, outPath string, minAPI int, release bool) ExternalTool {
	mode := "--debug"
	if release {
		mode = "--release"
	}
	return ExternalTool{
		RuleParams: blueprint.RuleParams{
			Command:     "$dexCodec " + mode + " --min-api $minAPI --output $out $in",
			CommandDeps: []string{"$dexCodec"},
		},
		DexID:   dexID,
		Inputs:  classNames,
		Outputs: []string{outPath},
	}
}

// PlanZipAssembly describes packing a directory of loose DEX files into
// a single APK-style zip, generalized from a build-rule description the
// same way PlanDexEncode is.
func PlanZipAssembly(dexFiles []string, outPath string) ExternalTool {
	return ExternalTool{
		RuleParams: blueprint.RuleParams{
			Command:     "$zipTool -o $out $in",
			CommandDeps: []string{"$zipTool"},
		},
		DexID:   -1,
		Inputs:  dexFiles,
		Outputs: []string{outPath},
	}
}

// Encoder turns a distribute.File's classes into DEX bytes. Real
// implementations call an actual DEX encoder. Package write declares
// its own Encoder interface of the same shape, and its tests substitute
// a fake there.
type Encoder interface {
	EncodeDex(factory *graph.Factory, lens graph.Lens, classes []*graph.Class, minAPI int) ([]byte, error)
}

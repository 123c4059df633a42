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

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"android/r8/callgraph"
	"android/r8/codec"
	"android/r8/compileerror"
	"android/r8/distribute"
	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rename"
	"android/r8/rootset"
	"android/r8/write"

	"github.com/sirupsen/logrus"
)

// unimplementedReader is the stand-in for the real classfile/DEX
// decoder: codec.Reader is the described-only external-collaborator
// seam (spec.md §1), and this module never implements the decode side
// itself. main wires it in so the pipeline's shape is complete and
// testable up to the point where bytes would actually need parsing.
type unimplementedReader struct{}

func (unimplementedReader) ReadInto(factory *graph.Factory, path string, origin graph.Origin) error {
	return compileerror.Atf(compileerror.KindInput, path, "no classfile/DEX decoder wired into this build")
}

func readFile(path string) (string, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// compile runs the full pipeline: load configuration, read inputs,
// compute the root set and liveness fixpoint, build the call graph,
// minify names, distribute classes across virtual DEX files, and write
// the result.
func compile(opts *options) error {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if opts.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfiguration(opts)
	if err != nil {
		return err
	}

	factory := graph.NewFactory()
	reader := unimplementedReader{}
	for _, in := range opts.inputs {
		if err := reader.ReadInto(factory, in, graph.OriginProgram); err != nil {
			return err
		}
	}
	for _, lib := range opts.libs {
		if err := reader.ReadInto(factory, lib, graph.OriginLibrary); err != nil {
			return err
		}
	}

	roots, err := rootset.Build(factory, cfg, log, false)
	if err != nil {
		return err
	}

	enq := enqueue.New(factory, roots, log, !cfg.IgnoreWarnings)
	info, err := enq.Run()
	if err != nil {
		return err
	}

	graphOfCalls := callgraph.Build(factory, info)
	graphOfCalls.BreakCycles()
	if !opts.debug {
		// Inlining and switch-map removal are disabled under --debug,
		// mirroring D8/R8's own undocumented behavior (SPEC_FULL.md §11).
		inlineCandidates := map[*graph.MethodRef]bool{}
		for _, m := range info.LiveMethods {
			inlineCandidates[m] = true
		}
		graphOfCalls.Inline(inlineCandidates, roots)
	}

	lens, err := rename.Minify(factory, info, cfg, roots)
	if err != nil {
		return err
	}
	if err := factory.Sort(lens); err != nil {
		return err
	}

	surviving := survivingClasses(factory, info)

	mainDexSet, err := mainDexSelection(opts, factory, log)
	if err != nil {
		return err
	}

	plan, err := distribute.Distribute(surviving, distribute.Options{
		Mode:         distributeMode(opts),
		MainDexRoots: mainDexSet,
	})
	if err != nil {
		return err
	}

	driver := &write.Driver{
		Factory: factory,
		Lens:    lens,
		Encoder: stubEncoder{},
		MinAPI:  opts.minAPI,
	}
	result, err := driver.Write(context.Background(), surviving, plan, opts.mainDexListOutput != "")
	if err != nil {
		return err
	}

	return writeOutputs(opts, result)
}

// stubEncoder stands in for codec.Encoder for the same reason
// unimplementedReader stands in for codec.Reader: the actual DEX
// encode is an external collaborator this module describes
// (codec.PlanDexEncode) but does not perform.
type stubEncoder struct{}

func (stubEncoder) EncodeDex(factory *graph.Factory, lens graph.Lens, classes []*graph.Class, minAPI int) ([]byte, error) {
	classNames := make([]string, len(classes))
	for i, c := range classes {
		classNames[i] = distribute.ClassInternalName(c.Type)
	}
	_ = codec.PlanDexEncode(0, classNames, "", minAPI, false)
	return nil, compileerror.Newf(compileerror.KindInput, "no DEX encoder wired into this build")
}

func loadConfiguration(opts *options) (*keepconfig.Configuration, error) {
	var cfg *keepconfig.Configuration
	var err error
	if opts.pgConf != "" {
		cfg, err = keepconfig.ParseFiles([]string{opts.pgConf}, readFile)
		if err != nil {
			return nil, compileerror.At(compileerror.KindConfiguration, opts.pgConf, err)
		}
	} else {
		cfg = &keepconfig.Configuration{}
	}

	cfg.Shrink = !opts.noTreeShaking
	cfg.Obfuscate = !opts.noMinification
	return cfg, nil
}

func survivingClasses(factory *graph.Factory, info *enqueue.AppInfoWithLiveness) []*graph.Class {
	var out []*graph.Class
	for _, t := range info.LiveTypes {
		if !t.IsClass() {
			continue
		}
		if c, ok := factory.DefinitionFor(t); ok && c.Origin == graph.OriginProgram {
			out = append(out, c)
		}
	}
	return out
}

func distributeMode(opts *options) distribute.Mode {
	if opts.release {
		return distribute.FillFiles
	}
	return distribute.MonoDex
}

func mainDexSelection(opts *options, factory *graph.Factory, log *logrus.Logger) (map[string]bool, error) {
	if opts.mainDexRules == "" && opts.mainDexList == "" {
		return nil, nil
	}

	explicit := map[string]bool{}
	if opts.mainDexList != "" {
		names, err := readLines(opts.mainDexList)
		if err != nil {
			return nil, compileerror.At(compileerror.KindInput, opts.mainDexList, err)
		}
		for _, n := range names {
			explicit[strings.TrimSuffix(n, ".class")] = true
		}
	}

	var mainDexCfg *keepconfig.Configuration
	if opts.mainDexRules != "" {
		cfg, err := keepconfig.ParseFiles([]string{opts.mainDexRules}, readFile)
		if err != nil {
			return nil, compileerror.At(compileerror.KindConfiguration, opts.mainDexRules, err)
		}
		mainDexCfg = cfg
	}

	return distribute.MainDexRoots(factory, mainDexCfg, explicit, log)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func writeOutputs(opts *options, result *write.Result) error {
	if err := os.MkdirAll(opts.output, 0755); err != nil {
		return compileerror.At(compileerror.KindInput, opts.output, err)
	}
	for i, bytes := range result.DexFiles {
		name := "classes.dex"
		if i > 0 {
			name = fmt.Sprintf("classes%d.dex", i+1)
		}
		path := filepath.Join(opts.output, name)
		if err := os.WriteFile(path, bytes, 0644); err != nil {
			return compileerror.At(compileerror.KindInput, path, err)
		}
	}

	if opts.pgMap != "" {
		if err := os.WriteFile(opts.pgMap, []byte(result.RenameMap), 0644); err != nil {
			return compileerror.At(compileerror.KindInput, opts.pgMap, err)
		}
	}
	if opts.mainDexListOutput != "" {
		if err := os.WriteFile(opts.mainDexListOutput, []byte(result.MainDexList), 0644); err != nil {
			return compileerror.At(compileerror.KindInput, opts.mainDexListOutput, err)
		}
	}
	return nil
}

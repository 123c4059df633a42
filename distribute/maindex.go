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
	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"

	"github.com/sirupsen/logrus"
)

// MainDexRoots computes the set of classes that must live in the
// primary DEX, per SPEC_FULL.md §8: a second rootset.Build/enqueuer pass
// against the --main-dex-rules configuration, unioned verbatim with an
// explicit --main-dex-list (already-concrete class names need no
// closure). Keys are internal names ("com/foo/Bar"), matching
// ClassInternalName.
func MainDexRoots(factory *graph.Factory, mainDexRules *keepconfig.Configuration, explicitList map[string]bool, log *logrus.Logger) (map[string]bool, error) {
	out := map[string]bool{}
	for k := range explicitList {
		out[k] = true
	}
	if mainDexRules == nil {
		return out, nil
	}

	roots, err := rootset.Build(factory, mainDexRules, log, false)
	if err != nil {
		return nil, err
	}
	enq := enqueue.New(factory, roots, log, false)
	info, err := enq.Run()
	if err != nil {
		return nil, err
	}
	for _, t := range info.LiveTypes {
		if t.IsClass() {
			out[ClassInternalName(t)] = true
		}
	}
	return out, nil
}

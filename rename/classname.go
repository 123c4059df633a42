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
	"strings"

	"android/r8/enqueue"
	"android/r8/graph"
	"android/r8/keepconfig"
	"android/r8/rootset"
)

// ClassNamer produces the Type → String renaming spec.md §4.7.1
// describes.
type ClassNamer struct {
	factory *graph.Factory
	cfg     *keepconfig.Configuration
	roots   *rootset.RootSet

	namespaces    map[string]*Namespace // by package prefix, e.g. "Lcom/foo/"
	newPrefixFor  map[string]string     // original package prefix -> assigned new prefix
	usedPrefixes  map[string]bool       // package segments already claimed globally (repackage/flatten)
	usedFullNames map[string]bool       // full renamed descriptors already claimed, across namespaces

	renamed map[*graph.Type]string // original class type -> new simple descriptor
}

func newClassNamer(factory *graph.Factory, cfg *keepconfig.Configuration, roots *rootset.RootSet) *ClassNamer {
	return &ClassNamer{
		factory:       factory,
		cfg:           cfg,
		roots:         roots,
		namespaces:    map[string]*Namespace{},
		newPrefixFor:  map[string]string{},
		usedPrefixes:  map[string]bool{},
		usedFullNames: map[string]bool{},
		renamed:       map[*graph.Type]string{},
	}
}

func (cn *ClassNamer) namespaceFor(prefix string) *Namespace {
	ns, ok := cn.namespaces[prefix]
	if !ok {
		ns = newNamespace(prefix)
		cn.namespaces[prefix] = ns
	}
	return ns
}

// packagePrefix returns the package-prefix portion of a class descriptor,
// e.g. "Lcom/foo/Bar;" -> "Lcom/foo/", "LBar;" -> "L".
func packagePrefix(descriptor string) string {
	idx := strings.LastIndexByte(descriptor, '/')
	if idx < 0 {
		return "L"
	}
	return descriptor[:idx+1]
}

func simpleName(descriptor string) string {
	idx := strings.LastIndexByte(descriptor, '/')
	start := 1
	if idx >= 0 {
		start = idx + 1
	}
	return strings.TrimSuffix(descriptor[start:], ";")
}

func parentPackagePrefix(prefix string) (string, bool) {
	if prefix == "L" {
		return "", false
	}
	trimmed := strings.TrimSuffix(prefix, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return "L", true
	}
	return trimmed[:idx+1], true
}

// Run assigns every class in the program a new name, honoring
// no-obfuscation pins, keep-package-name, and the configured
// package-obfuscation mode.
func (cn *ClassNamer) Run(info *enqueue.AppInfoWithLiveness) map[*graph.Type]string {
	pinned := map[*graph.Type]bool{}

	byType := map[*graph.Type]*graph.Class{}
	for _, c := range cn.factory.AllClasses() {
		byType[c.Type] = c
	}

	for item := range cn.roots.NoObfuscation {
		item.Switch(
			func(c *graph.Class) { cn.pinClass(c, pinned, byType) },
			func(*graph.MethodRef) {},
			func(*graph.FieldRef) {},
		)
	}

	for _, t := range info.LiveTypes {
		c, ok := byType[t]
		if !ok || !t.IsClass() || pinned[t] {
			continue
		}
		cn.assignClassName(c)
	}
	return cn.renamed
}

// pinClass registers c's current name as used and, in keep-inner-class
// mode, walks the EnclosingClass chain pinning each ancestor too, per
// spec.md §4.7.1 step 1.
func (cn *ClassNamer) pinClass(c *graph.Class, pinned map[*graph.Type]bool, byType map[*graph.Type]*graph.Class) {
	if pinned[c.Type] {
		return
	}
	pinned[c.Type] = true
	prefix := packagePrefix(c.Type.String())
	cn.namespaceFor(prefix).reserveName(simpleName(c.Type.String()))
	if cn.cfg.KeepInnerClasses && c.EnclosingClass != nil {
		if outer, ok := byType[c.EnclosingClass]; ok {
			cn.pinClass(outer, pinned, byType)
		}
	}
}

func (cn *ClassNamer) assignClassName(c *graph.Class) {
	descriptor := c.Type.String()

	if cn.cfg.KeepInnerClasses && c.EnclosingClass != nil {
		if outerNew, ok := cn.renamed[c.EnclosingClass]; ok {
			suffix := cn.innerSuffix(outerNew)
			cn.renamed[c.Type] = strings.TrimSuffix(outerNew, ";") + "$" + suffix + ";"
			return
		}
	}

	origPrefix := packagePrefix(descriptor)
	var newPrefix string
	switch {
	case cn.keepsPackageName(origPrefix):
		newPrefix = origPrefix
	case cn.cfg.PackageObfuscation == keepconfig.PackageObfuscationRepackage:
		newPrefix = cn.repackageTarget()
	case cn.cfg.PackageObfuscation == keepconfig.PackageObfuscationFlatten:
		newPrefix = cn.flattenTarget(origPrefix)
	default: // PackageObfuscationNone
		newPrefix = cn.noneTarget(origPrefix)
	}

	ns := cn.namespaceFor(newPrefix)
	name := ns.nextTypeName(cn.cfg.Dictionaries.ClassNames, cn.usedFullNames)
	full := newPrefix + name + ";"
	cn.usedFullNames[full] = true
	cn.renamed[c.Type] = full
}

func (cn *ClassNamer) keepsPackageName(origPrefix string) bool {
	pkg := strings.TrimSuffix(strings.TrimPrefix(origPrefix, "L"), "/")
	pkg = strings.ReplaceAll(pkg, "/", ".")
	_, ok := cn.roots.KeepPackageName[pkg]
	return ok
}

func (cn *ClassNamer) repackageTarget() string {
	if cn.cfg.PackagePrefix == "" {
		return "L"
	}
	return "L" + strings.ReplaceAll(cn.cfg.PackagePrefix, ".", "/") + "/"
}

// flattenTarget allocates one fresh subpackage off the top-level
// namespace per distinct source package (spec.md §4.7.1 "flatten").
func (cn *ClassNamer) flattenTarget(origPrefix string) string {
	if v, ok := cn.newPrefixFor[origPrefix]; ok {
		return v
	}
	top := cn.repackageTarget()
	if origPrefix == "L" {
		cn.newPrefixFor[origPrefix] = top
		return top
	}
	segment := cn.namespaceFor(top).nextPackageSegment(cn.cfg.Dictionaries.PackageNames, cn.usedPrefixes)
	newPrefix := top + segment + "/"
	cn.newPrefixFor[origPrefix] = newPrefix
	return newPrefix
}

// noneTarget recursively derives a fresh prefix from the parent
// package's already-assigned prefix (spec.md §4.7.1 "none": `"La/b/c"`
// derives its prefix from `"La/b"`'s state).
func (cn *ClassNamer) noneTarget(origPrefix string) string {
	if v, ok := cn.newPrefixFor[origPrefix]; ok {
		return v
	}
	parent, hasParent := parentPackagePrefix(origPrefix)
	if !hasParent {
		cn.newPrefixFor[origPrefix] = "L"
		return "L"
	}
	parentNew := cn.noneTarget(parent)
	segment := cn.namespaceFor(parentNew).nextPackageSegment(cn.cfg.Dictionaries.PackageNames, cn.usedPrefixes)
	newPrefix := parentNew + segment + "/"
	cn.newPrefixFor[origPrefix] = newPrefix
	return newPrefix
}

func (cn *ClassNamer) innerSuffix(outerNew string) string {
	ns := cn.namespaceFor("inner:" + outerNew)
	return ns.nextTypeName(cn.cfg.Dictionaries.ClassNames, nil)
}

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

// Package enqueue computes the reachability/liveness fixpoint over a
// program graph: starting from a root set, the least set of classes,
// methods, and fields reachable under a whole-program closed-world
// assumption where library classes are opaque "may-be-anything" roots
// (spec.md §4.4).
package enqueue

import (
	"fmt"

	"android/r8/compileerror"
	"android/r8/graph"
	"android/r8/rootset"
	"android/r8/slowcompare"

	"github.com/sirupsen/logrus"
)

// Reason is the diagnostic payload every work-list event carries.
type Reason struct {
	Detail string
}

func reasonf(format string, args ...any) Reason { return Reason{Detail: fmt.Sprintf(format, args...)} }

type eventKind uint8

const (
	evMarkInstantiated eventKind = iota
	evMarkReachableVirtual
	evMarkReachableInterface
	evMarkReachableSuper
	evMarkReachableInstanceField
	evMarkMethodLive
	evMarkMethodKept
	evMarkFieldKept
)

// event is the tagged work-list entry spec.md §4.4 enumerates.
type event struct {
	kind   eventKind
	typ    *graph.Type
	method *graph.MethodRef
	field  *graph.FieldRef
	reason Reason
}

// AppInfoWithLiveness is the immutable, sorted output of one Run: the
// transitive closure of everything that can be reached at runtime.
type AppInfoWithLiveness struct {
	LiveTypes         []*graph.Type
	InstantiatedTypes []*graph.Type
	LiveMethods       []*graph.MethodRef
	LiveFields        []*graph.FieldRef
	TargetedMethods   []*graph.MethodRef

	VirtualInvokes        []*graph.MethodRef
	SuperInvokes          []*graph.MethodRef
	DirectInvokes         []*graph.MethodRef
	StaticInvokes         []*graph.MethodRef
	InstanceFieldsRead    []*graph.FieldRef
	InstanceFieldsWritten []*graph.FieldRef
	StaticFieldsRead      []*graph.FieldRef
	StaticFieldsWritten   []*graph.FieldRef

	Warnings []string
}

// Enqueuer runs the single-threaded work-list fixpoint (spec.md §5: "the
// work-list fixpoint is sequential and must be deterministic").
type Enqueuer struct {
	factory *graph.Factory
	roots   *rootset.RootSet
	log     *logrus.Logger
	strict  bool // when true, missing references are fatal instead of warned

	worklist []event

	liveTypes         map[*graph.Type]Reason
	instantiatedTypes map[*graph.Type]Reason
	liveMethods       map[*graph.MethodRef]Reason
	liveFields        map[*graph.FieldRef]Reason
	targetedMethods   map[*graph.MethodRef]Reason

	reachableVirtual map[*graph.Type]map[*graph.MethodRef]Reason
	reachableFields  map[*graph.Type]map[*graph.FieldRef]Reason
	superDeps        map[*graph.MethodRef]map[*graph.MethodRef]bool
	deferredAnns     map[*graph.Type][]graph.Annotation

	virtualInvokes, superInvokes, directInvokes, staticInvokes map[*graph.MethodRef]bool
	instanceReads, instanceWrites, staticReads, staticWrites    map[*graph.FieldRef]bool

	methodByRef map[*graph.MethodRef]*graph.EncodedMethod

	warnings []string
}

// New builds an Enqueuer over factory, seeded from roots. log may be nil.
// strict promotes missing-reference warnings to fatal errors, per
// spec.md §7's "Missing reference" error kind.
func New(factory *graph.Factory, roots *rootset.RootSet, log *logrus.Logger, strict bool) *Enqueuer {
	e := &Enqueuer{
		factory:           factory,
		roots:             roots,
		log:               log,
		strict:            strict,
		liveTypes:         map[*graph.Type]Reason{},
		instantiatedTypes: map[*graph.Type]Reason{},
		liveMethods:       map[*graph.MethodRef]Reason{},
		liveFields:        map[*graph.FieldRef]Reason{},
		targetedMethods:   map[*graph.MethodRef]Reason{},
		reachableVirtual:  map[*graph.Type]map[*graph.MethodRef]Reason{},
		reachableFields:   map[*graph.Type]map[*graph.FieldRef]Reason{},
		superDeps:         map[*graph.MethodRef]map[*graph.MethodRef]bool{},
		deferredAnns:      map[*graph.Type][]graph.Annotation{},
		virtualInvokes:    map[*graph.MethodRef]bool{},
		superInvokes:      map[*graph.MethodRef]bool{},
		directInvokes:     map[*graph.MethodRef]bool{},
		staticInvokes:     map[*graph.MethodRef]bool{},
		instanceReads:     map[*graph.FieldRef]bool{},
		instanceWrites:    map[*graph.FieldRef]bool{},
		staticReads:       map[*graph.FieldRef]bool{},
		staticWrites:      map[*graph.FieldRef]bool{},
		methodByRef:       map[*graph.MethodRef]*graph.EncodedMethod{},
	}
	for _, c := range factory.AllClasses() {
		for _, m := range c.AllMethods() {
			e.methodByRef[m.Ref] = m
		}
	}
	return e
}

// Run drains the work-list to a fixpoint and returns the liveness result.
// Seeding from the root set happens first; every subsequent event is
// generated by processing a previously-drained event, so the closure is
// exact.
func (e *Enqueuer) Run() (*AppInfoWithLiveness, error) {
	e.seedFromRootSet()
	for len(e.worklist) > 0 {
		// Sort the pending batch deterministically before draining it, per
		// spec.md §4.4: "implementations MUST sort sibling work
		// deterministically... at every fork point."
		slowcompare.SortItems(e.worklist, compareEvents)
		ev := e.worklist[0]
		e.worklist = e.worklist[1:]
		if err := e.process(ev); err != nil {
			return nil, err
		}
	}
	return e.finish(), nil
}

func compareEvents(a, b event) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case evMarkInstantiated:
		return slowcompare.Types(a.typ, b.typ)
	case evMarkReachableVirtual, evMarkReachableInterface, evMarkReachableSuper, evMarkMethodLive, evMarkMethodKept:
		return slowcompare.Methods(a.method, b.method)
	case evMarkReachableInstanceField, evMarkFieldKept:
		return slowcompare.Fields(a.field, b.field)
	default:
		return 0
	}
}

func (e *Enqueuer) push(ev event) { e.worklist = append(e.worklist, ev) }

func (e *Enqueuer) seedFromRootSet() {
	if e.roots == nil {
		return
	}
	for item := range e.roots.NoShrinking {
		item.Switch(
			func(c *graph.Class) {
				e.push(event{kind: evMarkInstantiated, typ: c.Type, reason: reasonf("kept by configuration")})
				for _, m := range c.AllMethods() {
					e.push(event{kind: evMarkMethodKept, method: m.Ref, reason: reasonf("kept by configuration")})
				}
				for _, fl := range c.AllFields() {
					e.push(event{kind: evMarkFieldKept, field: fl.Ref, reason: reasonf("kept by configuration")})
				}
			},
			func(m *graph.MethodRef) {
				e.push(event{kind: evMarkMethodKept, method: m, reason: reasonf("kept by configuration")})
			},
			func(f *graph.FieldRef) {
				e.push(event{kind: evMarkFieldKept, field: f, reason: reasonf("kept by configuration")})
			},
		)
	}
}

func (e *Enqueuer) process(ev event) error {
	switch ev.kind {
	case evMarkInstantiated:
		return e.markInstantiated(ev.typ, ev.reason)
	case evMarkReachableVirtual:
		return e.markReachableVirtual(ev.method, ev.reason)
	case evMarkReachableInterface:
		return e.markReachableVirtual(ev.method, ev.reason) // same reachable-table, different origin tag
	case evMarkReachableSuper:
		return e.markMethodLive(ev.method, ev.reason)
	case evMarkReachableInstanceField:
		return e.markReachableInstanceField(ev.field, ev.reason)
	case evMarkMethodLive, evMarkMethodKept:
		return e.markMethodLive(ev.method, ev.reason)
	case evMarkFieldKept:
		e.liveFields[ev.field] = ev.reason
		return e.markTypeLive(ev.field.Holder, ev.reason)
	}
	return nil
}

func (e *Enqueuer) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.warnings = append(e.warnings, msg)
	if e.log != nil {
		e.log.Warn(msg)
	}
}

func (e *Enqueuer) missingReference(kind compileerror.Kind, item fmt.Stringer) error {
	msg := fmt.Sprintf("reference to missing item: %s", item)
	if e.strict {
		return compileerror.At(kind, item.String(), fmt.Errorf("%s", msg))
	}
	e.warn("%s", msg)
	return nil
}

// markTypeLive implements spec.md §4.4's "a type becoming live" rule:
// mark supertype and interfaces live, process (or defer) class
// annotations, and mark a non-trivial class initializer live.
func (e *Enqueuer) markTypeLive(t *graph.Type, reason Reason) error {
	if _, ok := e.liveTypes[t]; ok {
		return nil
	}
	e.liveTypes[t] = reason
	// Replay any annotation deferred against this type now that it is live.
	if deferred, ok := e.deferredAnns[t]; ok {
		delete(e.deferredAnns, t)
		for _, a := range deferred {
			e.markAnnotationPayload(a)
		}
	}
	c, ok := e.factory.DefinitionFor(t)
	if !ok {
		// Missing or not-yet-defined type: a recoverable state per
		// spec.md §3, not a fatal error by itself.
		return nil
	}
	if c.Super != nil {
		if err := e.markTypeLive(c.Super, reasonf("supertype of %s", t)); err != nil {
			return err
		}
	}
	for _, iface := range c.Interfaces {
		if err := e.markTypeLive(iface, reasonf("interface of %s", t)); err != nil {
			return err
		}
	}
	e.processAnnotations(c.Annotations)
	for _, m := range c.DirectMethods {
		if m.Ref.Name.String() == "<clinit>" {
			e.push(event{kind: evMarkMethodLive, method: m.Ref, reason: reasonf("class initializer of %s", t)})
		}
	}
	return nil
}

// processAnnotations walks an annotation payload; any type mentioned
// keeps its referenced items live if already live, otherwise the
// annotation is deferred against that type (spec.md §4.4
// "deferred-annotations").
func (e *Enqueuer) processAnnotations(anns []graph.Annotation) {
	for _, a := range anns {
		if _, ok := e.liveTypes[a.Type]; ok {
			e.markAnnotationPayload(a)
			continue
		}
		e.deferredAnns[a.Type] = append(e.deferredAnns[a.Type], a)
	}
}

func (e *Enqueuer) markAnnotationPayload(a graph.Annotation) {
	for _, v := range a.Elements {
		switch val := v.(type) {
		case *graph.Type:
			e.push(event{kind: evMarkInstantiated, typ: val, reason: Reason{Detail: "referenced in annotation payload"}})
		case graph.Annotation:
			e.markAnnotationPayload(val)
		}
	}
}

// markInstantiated implements "a class becoming instantiated": mark the
// type live, then run transitionMethodsForInstantiatedClass and
// transitionFieldsForInstantiatedClass.
func (e *Enqueuer) markInstantiated(t *graph.Type, reason Reason) error {
	if _, ok := e.instantiatedTypes[t]; ok {
		return nil
	}
	e.instantiatedTypes[t] = reason
	if err := e.markTypeLive(t, reason); err != nil {
		return err
	}
	e.transitionMethodsForInstantiatedClass(t)
	e.transitionFieldsForInstantiatedClass(t)
	return nil
}

// transitionMethodsForInstantiatedClass walks up the super-chain; for
// each ancestor, every method in reachable-virtual-methods whose erased
// signature is not shadowed by a more-derived override already visited
// is marked live. "Already visited" means strictly more-derived than
// cur: shadowed must accumulate from the levels walked BEFORE cur's own
// declarations are folded in, otherwise every ancestor trivially shadows
// its own reachable-virtual entries against itself and the "not shadowed
// by a more-derived class" rule never actually excludes anything.
func (e *Enqueuer) transitionMethodsForInstantiatedClass(t *graph.Type) {
	shadowed := map[string]bool{}
	cur, ok := e.factory.DefinitionFor(t)
	for ok {
		if targets, present := e.reachableVirtual[cur.Type]; present {
			for target, r := range targets {
				if !shadowed[target.ErasedSignature()] {
					e.push(event{kind: evMarkMethodLive, method: target, reason: r})
				}
			}
		}
		for _, m := range cur.AllMethods() {
			shadowed[m.Ref.ErasedSignature()] = true
		}
		if cur.Super == nil {
			break
		}
		cur, ok = e.factory.DefinitionFor(cur.Super)
	}
}

func (e *Enqueuer) transitionFieldsForInstantiatedClass(t *graph.Type) {
	cur, ok := e.factory.DefinitionFor(t)
	for ok {
		if targets, present := e.reachableFields[cur.Type]; present {
			for field, r := range targets {
				e.liveFields[field] = r
				e.instanceReads[field] = true
			}
		}
		if cur.Super == nil {
			break
		}
		cur, ok = e.factory.DefinitionFor(cur.Super)
	}
}

// resolveTopVirtualTarget performs standard Java/Dalvik virtual lookup:
// the nearest declaration of the erased signature starting at holder and
// walking up the super-chain.
func (e *Enqueuer) resolveTopVirtualTarget(holder *graph.Type, erasedSig string) (*graph.EncodedMethod, bool) {
	cur, ok := e.factory.DefinitionFor(holder)
	for ok {
		if m, found := cur.FindVirtualMethod(erasedSig); found {
			return m, true
		}
		if cur.Super == nil {
			return nil, false
		}
		cur, ok = e.factory.DefinitionFor(cur.Super)
	}
	return nil, false
}

// collectConcreteTargets gathers, for every type in the transitive
// extends-closure of holder (classes) or implements-closure (interfaces),
// the method directly declared there matching erasedSig — the set
// spec.md §4.4 calls "every concrete target returned by
// lookupVirtualTargets(H) / lookupInterfaceTargets(H)".
func (e *Enqueuer) collectConcreteTargets(holder *graph.Type, erasedSig string, viaInterface bool) []*graph.EncodedMethod {
	var out []*graph.EncodedMethod
	visit := func(t *graph.Type) {
		if c, ok := e.factory.DefinitionFor(t); ok {
			if m, found := c.FindVirtualMethod(erasedSig); found {
				out = append(out, m)
			}
		}
	}
	visit(holder)
	if viaInterface {
		e.factory.Subtype().ForAllImplementsSubtypes(holder, func(sub *graph.Type) bool {
			visit(sub)
			return true
		})
	} else {
		e.factory.Subtype().ForAllExtendsSubtypes(holder, func(sub *graph.Type) bool {
			visit(sub)
			return true
		})
	}
	return out
}

func (e *Enqueuer) markReachableVirtual(target *graph.MethodRef, reason Reason) error {
	bucket, ok := e.reachableVirtual[target.Holder]
	if !ok {
		bucket = map[*graph.MethodRef]Reason{}
		e.reachableVirtual[target.Holder] = bucket
	}
	if _, already := bucket[target]; already {
		return nil
	}
	bucket[target] = reason
	if _, instantiated := e.instantiatedTypes[target.Holder]; instantiated {
		e.push(event{kind: evMarkMethodLive, method: target, reason: reason})
		return nil
	}
	// target.Holder itself isn't instantiated, but a subtype might already
	// be — e.g. the instantiation was processed before this invoke-virtual
	// recorded the entry. Walk the subtype worklist spec.md §4.4
	// describes (interfaces: implements- and extends-subtypes; classes:
	// extends-subtypes only), stopping at any subtype that shadows target,
	// and mark target live immediately if any surviving subtype is
	// already instantiated — otherwise defer, relying on
	// transitionMethodsForInstantiatedClass to re-check reachableVirtual
	// against every ancestor when a later instantiation occurs.
	if e.anyNonShadowingSubtypeInstantiated(target) {
		e.push(event{kind: evMarkMethodLive, method: target, reason: reason})
	}
	return nil
}

// anyNonShadowingSubtypeInstantiated walks target.Holder's subtypes,
// pruning a branch as soon as it finds a subtype that declares its own
// override of target's erased signature (that subtype, and everything
// beneath it, dispatches to its own override instead of target), and
// reports whether any surviving subtype along the way is already
// instantiated.
func (e *Enqueuer) anyNonShadowingSubtypeInstantiated(target *graph.MethodRef) bool {
	erased := target.ErasedSignature()
	viaInterface := target.Holder.IsInterface()
	visited := map[*graph.Type]bool{}

	var walk func(t *graph.Type) bool
	walk = func(t *graph.Type) bool {
		if visited[t] {
			return false
		}
		visited[t] = true
		c, ok := e.factory.DefinitionFor(t)
		if !ok {
			return false
		}
		if _, shadows := c.FindVirtualMethod(erased); shadows {
			return false
		}
		if _, instantiated := e.instantiatedTypes[t]; instantiated {
			return true
		}
		for _, sub := range e.factory.Subtype().DirectExtendsSubtypes(t) {
			if walk(sub) {
				return true
			}
		}
		if viaInterface {
			for _, sub := range e.factory.Subtype().DirectImplementsSubtypes(t) {
				if walk(sub) {
					return true
				}
			}
		}
		return false
	}

	for _, sub := range e.factory.Subtype().DirectExtendsSubtypes(target.Holder) {
		if walk(sub) {
			return true
		}
	}
	if viaInterface {
		for _, sub := range e.factory.Subtype().DirectImplementsSubtypes(target.Holder) {
			if walk(sub) {
				return true
			}
		}
	}
	return false
}

// invokeVirtual implements spec.md §4.4's invoke-virtual/invoke-interface
// transition rule.
func (e *Enqueuer) invokeVirtual(ref *graph.MethodRef, viaInterface bool) error {
	erased := ref.ErasedSignature()
	top, ok := e.resolveTopVirtualTarget(ref.Holder, erased)
	if !ok {
		return e.missingReference(compileerror.KindMissingReference, ref)
	}
	e.targetedMethods[top.Ref] = reasonf("invoke target %s", ref)
	targets := e.collectConcreteTargets(ref.Holder, erased, viaInterface)
	slowcompare.SortItems(targets, func(a, b *graph.EncodedMethod) int { return slowcompare.Methods(a.Ref, b.Ref) })
	for _, t := range targets {
		kind := evMarkReachableVirtual
		if viaInterface {
			kind = evMarkReachableInterface
		}
		e.push(event{kind: kind, method: t.Ref, reason: reasonf("dispatch target of %s", ref)})
	}
	return nil
}

func (e *Enqueuer) invokeSuper(ref *graph.MethodRef, from *graph.MethodRef) error {
	// Resolution starts one level above the caller's holder, per normal
	// invoke-super semantics (the reference's own holder already IS the
	// immediate superclass in well-formed bytecode).
	concrete, ok := e.resolveTopVirtualTarget(ref.Holder, ref.ErasedSignature())
	if !ok {
		return e.missingReference(compileerror.KindMissingReference, ref)
	}
	deps, ok := e.superDeps[from]
	if !ok {
		deps = map[*graph.MethodRef]bool{}
		e.superDeps[from] = deps
	}
	deps[concrete.Ref] = true
	if _, live := e.liveMethods[from]; live {
		e.push(event{kind: evMarkReachableSuper, method: concrete.Ref, reason: reasonf("invoke-super from %s", from)})
	}
	return nil
}

func (e *Enqueuer) resolveStaticFieldDeclaration(holder *graph.Type, name string) (*graph.EncodedField, bool) {
	cur, ok := e.factory.DefinitionFor(holder)
	for ok {
		for _, fl := range cur.StaticFields {
			if fl.Ref.Name.String() == name {
				return fl, true
			}
		}
		if cur.Super == nil {
			return nil, false
		}
		cur, ok = e.factory.DefinitionFor(cur.Super)
	}
	return nil, false
}

func (e *Enqueuer) resolveInstanceFieldDeclaration(holder *graph.Type, name string) (*graph.EncodedField, bool) {
	cur, ok := e.factory.DefinitionFor(holder)
	for ok {
		if fl, found := cur.FindInstanceField(name); found {
			return fl, true
		}
		if cur.Super == nil {
			return nil, false
		}
		cur, ok = e.factory.DefinitionFor(cur.Super)
	}
	return nil, false
}

func (e *Enqueuer) markReachableInstanceField(ref *graph.FieldRef, reason Reason) error {
	bucket, ok := e.reachableFields[ref.Holder]
	if !ok {
		bucket = map[*graph.FieldRef]Reason{}
		e.reachableFields[ref.Holder] = bucket
	}
	bucket[ref] = reason
	if _, instantiated := e.instantiatedTypes[ref.Holder]; instantiated {
		e.liveFields[ref] = reason
	}
	return nil
}

func (e *Enqueuer) markMethodLive(ref *graph.MethodRef, reason Reason) error {
	if _, already := e.liveMethods[ref]; already {
		return nil
	}
	e.liveMethods[ref] = reason
	if err := e.markTypeLive(ref.Holder, reason); err != nil {
		return err
	}
	if err := e.markTypeLive(ref.Proto.Return, reasonf("return type of %s", ref)); err != nil {
		return err
	}
	for _, p := range ref.Proto.Params {
		if err := e.markTypeLive(p, reasonf("parameter type of %s", ref)); err != nil {
			return err
		}
	}
	if deps, ok := e.superDeps[ref]; ok {
		for target := range deps {
			e.push(event{kind: evMarkReachableSuper, method: target, reason: reasonf("invoke-super from %s", ref)})
		}
	}
	m, ok := e.methodByRef[ref]
	if !ok || m.Code == nil {
		return nil
	}
	return e.processCode(ref, m.Code)
}

func flattenInstructions(c *graph.Code) []graph.Instruction {
	switch c.Kind {
	case graph.CodeKindDex:
		if c.Dex == nil {
			return nil
		}
		return c.Dex.Instructions
	case graph.CodeKindIR:
		if c.IR == nil {
			return nil
		}
		var out []graph.Instruction
		for _, b := range c.IR.Blocks {
			out = append(out, b.Instructions...)
		}
		return out
	default:
		return nil
	}
}

func (e *Enqueuer) processCode(owner *graph.MethodRef, code *graph.Code) error {
	for _, ins := range flattenInstructions(code) {
		if err := e.processInstruction(owner, ins); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enqueuer) processInstruction(owner *graph.MethodRef, ins graph.Instruction) error {
	switch ins.Opcode {
	case graph.OpNew:
		for _, op := range ins.Operands {
			if op.Type != nil {
				e.push(event{kind: evMarkInstantiated, typ: op.Type, reason: reasonf("new in %s", owner)})
			}
		}
	case graph.OpNewArray:
		for _, op := range ins.Operands {
			if op.Type != nil {
				if err := e.markTypeLive(op.Type, reasonf("new-array in %s", owner)); err != nil {
					return err
				}
			}
		}
	case graph.OpInvokeVirtual:
		if ref := operandMethod(ins); ref != nil {
			e.virtualInvokes[ref] = true
			if err := e.invokeVirtual(ref, false); err != nil {
				return err
			}
		}
	case graph.OpInvokeInterface:
		if ref := operandMethod(ins); ref != nil {
			e.virtualInvokes[ref] = true
			if err := e.invokeVirtual(ref, true); err != nil {
				return err
			}
		}
	case graph.OpInvokeSuper:
		if ref := operandMethod(ins); ref != nil {
			e.superInvokes[ref] = true
			if err := e.invokeSuper(ref, owner); err != nil {
				return err
			}
		}
	case graph.OpInvokeDirect:
		if ref := operandMethod(ins); ref != nil {
			e.directInvokes[ref] = true
			e.push(event{kind: evMarkMethodLive, method: ref, reason: reasonf("direct invoke from %s", owner)})
		}
	case graph.OpInvokeStatic:
		if ref := operandMethod(ins); ref != nil {
			e.staticInvokes[ref] = true
			e.push(event{kind: evMarkMethodLive, method: ref, reason: reasonf("static invoke from %s", owner)})
		}
	case graph.OpInstanceFieldGet:
		if ref := operandField(ins); ref != nil {
			if decl, ok := e.resolveInstanceFieldDeclaration(ref.Holder, ref.Name.String()); ok {
				e.instanceReads[decl.Ref] = true
				if err := e.markReachableInstanceField(decl.Ref, reasonf("read in %s", owner)); err != nil {
					return err
				}
			} else {
				return e.missingReference(compileerror.KindMissingReference, ref)
			}
		}
	case graph.OpInstanceFieldPut:
		if ref := operandField(ins); ref != nil {
			if decl, ok := e.resolveInstanceFieldDeclaration(ref.Holder, ref.Name.String()); ok {
				e.instanceWrites[decl.Ref] = true
				if err := e.markReachableInstanceField(decl.Ref, reasonf("write in %s", owner)); err != nil {
					return err
				}
			} else {
				return e.missingReference(compileerror.KindMissingReference, ref)
			}
		}
	case graph.OpStaticFieldGet, graph.OpStaticFieldPut:
		if ref := operandField(ins); ref != nil {
			decl, ok := e.resolveStaticFieldDeclaration(ref.Holder, ref.Name.String())
			if !ok {
				return e.missingReference(compileerror.KindMissingReference, ref)
			}
			e.liveFields[decl.Ref] = reasonf("static access in %s", owner)
			if err := e.markTypeLive(decl.Ref.Holder, reasonf("static access in %s", owner)); err != nil {
				return err
			}
			if ins.Opcode == graph.OpStaticFieldGet {
				e.staticReads[decl.Ref] = true
			} else {
				e.staticWrites[decl.Ref] = true
			}
		}
	case graph.OpCheckCast, graph.OpInstanceOf:
		for _, op := range ins.Operands {
			if op.Type != nil {
				if err := e.markTypeLive(op.Type, reasonf("cast/instanceof in %s", owner)); err != nil {
					return err
				}
			}
		}
	case graph.OpConst:
		for _, op := range ins.Operands {
			if op.Type != nil {
				if err := e.markTypeLive(op.Type, reasonf("class literal in %s", owner)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func operandMethod(ins graph.Instruction) *graph.MethodRef {
	for _, op := range ins.Operands {
		if op.Method != nil {
			return op.Method
		}
	}
	return nil
}

func operandField(ins graph.Instruction) *graph.FieldRef {
	for _, op := range ins.Operands {
		if op.Field != nil {
			return op.Field
		}
	}
	return nil
}

func (e *Enqueuer) finish() *AppInfoWithLiveness {
	info := &AppInfoWithLiveness{
		LiveTypes:             sortedTypeKeys(e.liveTypes),
		InstantiatedTypes:     sortedTypeKeys(e.instantiatedTypes),
		LiveMethods:           sortedMethodKeys(e.liveMethods),
		LiveFields:            sortedFieldKeys(e.liveFields),
		TargetedMethods:       sortedMethodKeys(e.targetedMethods),
		VirtualInvokes:        sortedMethodSet(e.virtualInvokes),
		SuperInvokes:          sortedMethodSet(e.superInvokes),
		DirectInvokes:         sortedMethodSet(e.directInvokes),
		StaticInvokes:         sortedMethodSet(e.staticInvokes),
		InstanceFieldsRead:    sortedFieldSet(e.instanceReads),
		InstanceFieldsWritten: sortedFieldSet(e.instanceWrites),
		StaticFieldsRead:      sortedFieldSet(e.staticReads),
		StaticFieldsWritten:   sortedFieldSet(e.staticWrites),
		Warnings:              e.warnings,
	}
	return info
}

func sortedTypeKeys(m map[*graph.Type]Reason) []*graph.Type {
	out := make([]*graph.Type, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	slowcompare.SortItems(out, slowcompare.Types)
	return out
}

func sortedMethodKeys(m map[*graph.MethodRef]Reason) []*graph.MethodRef {
	out := make([]*graph.MethodRef, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slowcompare.SortItems(out, slowcompare.Methods)
	return out
}

func sortedFieldKeys(m map[*graph.FieldRef]Reason) []*graph.FieldRef {
	out := make([]*graph.FieldRef, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slowcompare.SortItems(out, slowcompare.Fields)
	return out
}

func sortedMethodSet(m map[*graph.MethodRef]bool) []*graph.MethodRef {
	out := make([]*graph.MethodRef, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slowcompare.SortItems(out, slowcompare.Methods)
	return out
}

func sortedFieldSet(m map[*graph.FieldRef]bool) []*graph.FieldRef {
	out := make([]*graph.FieldRef, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slowcompare.SortItems(out, slowcompare.Fields)
	return out
}

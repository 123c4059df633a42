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

// Package rootset classifies every program item against a Configuration,
// producing the root set the enqueuer starts its fixpoint from
// (spec.md §4.3).
package rootset

import (
	"fmt"
	"sync"

	"android/r8/graph"
	"android/r8/keepconfig"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Item is a tagged sum over the three kinds of program item a rule can
// mark, per spec.md §9 ("Dispatch on item kind... express as a tagged
// sum, not an inheritance hierarchy").
type Item struct {
	kind   itemKind
	class  *graph.Class
	field  *graph.FieldRef
	method *graph.MethodRef
}

type itemKind uint8

const (
	itemClass itemKind = iota
	itemMethod
	itemField
)

func ClassItem(c *graph.Class) Item      { return Item{kind: itemClass, class: c} }
func MethodItem(m *graph.MethodRef) Item { return Item{kind: itemMethod, method: m} }
func FieldItem(f *graph.FieldRef) Item   { return Item{kind: itemField, field: f} }

// Switch calls exactly one of the three handlers depending on the item's
// kind, giving an exhaustiveness point for every consumer (spec.md §9).
func (it Item) Switch(onClass func(*graph.Class), onMethod func(*graph.MethodRef), onField func(*graph.FieldRef)) {
	switch it.kind {
	case itemClass:
		onClass(it.class)
	case itemMethod:
		onMethod(it.method)
	case itemField:
		onField(it.field)
	default:
		panic(fmt.Sprintf("rootset: unhandled item kind %d", it.kind))
	}
}

func (it Item) String() string {
	var s string
	it.Switch(
		func(c *graph.Class) { s = c.Type.String() },
		func(m *graph.MethodRef) { s = m.String() },
		func(f *graph.FieldRef) { s = f.String() },
	)
	return s
}

// KeepReason records which rule, and at which source location, put an
// item in the root set — used for -whyareyoukeeping diagnostics.
type KeepReason struct {
	Rule   *keepconfig.Rule
	Detail string
}

// RootSet is the classification output of spec.md §4.3: every program
// item sorted into the named sets, plus the conditional-survival map.
type RootSet struct {
	mu sync.Mutex

	NoShrinking    map[Item]KeepReason
	NoOptimization map[Item]KeepReason
	NoObfuscation  map[Item]KeepReason
	ReasonAsked    map[Item]KeepReason
	KeepPackageName map[string]KeepReason
	CheckDiscarded map[Item]KeepReason
	AlwaysInline   map[Item]KeepReason
	NoSideEffects  map[Item][]keepconfig.MemberRule
	AssumedValues  map[Item][]keepconfig.MemberRule

	// DependentNoShrinking expresses "if X survives, then Y also
	// survives" (spec.md §4.3): keyed by the item that must survive
	// first, mapping to the items that depend on it and the rule that
	// created the dependency.
	DependentNoShrinking map[Item]map[Item]*keepconfig.Rule

	Warnings []string
}

func newRootSet() *RootSet {
	return &RootSet{
		NoShrinking:          map[Item]KeepReason{},
		NoOptimization:       map[Item]KeepReason{},
		NoObfuscation:        map[Item]KeepReason{},
		ReasonAsked:          map[Item]KeepReason{},
		KeepPackageName:      map[string]KeepReason{},
		CheckDiscarded:       map[Item]KeepReason{},
		AlwaysInline:         map[Item]KeepReason{},
		NoSideEffects:        map[Item][]keepconfig.MemberRule{},
		AssumedValues:        map[Item][]keepconfig.MemberRule{},
		DependentNoShrinking: map[Item]map[Item]*keepconfig.Rule{},
	}
}

func (rs *RootSet) addDependentNoShrinking(on, dependent Item, rule *keepconfig.Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	m, ok := rs.DependentNoShrinking[on]
	if !ok {
		m = map[Item]*keepconfig.Rule{}
		rs.DependentNoShrinking[on] = m
	}
	m[dependent] = rule
}

func (rs *RootSet) markClass(c *graph.Class, rule *keepconfig.Rule, keepClass, keepMembers bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	reason := KeepReason{Rule: rule, Detail: fmt.Sprintf("matched by %v", rule.Kind)}
	if keepClass {
		rs.NoShrinking[ClassItem(c)] = reason
		if !rule.AllowOptimization {
			rs.NoOptimization[ClassItem(c)] = reason
		}
		if !rule.AllowObfuscation {
			rs.NoObfuscation[ClassItem(c)] = reason
		}
	}
	_ = keepMembers
}

func (rs *RootSet) markMember(it Item, rule *keepconfig.Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	reason := KeepReason{Rule: rule, Detail: fmt.Sprintf("matched by %v", rule.Kind)}
	rs.NoShrinking[it] = reason
	if !rule.AllowOptimization {
		rs.NoOptimization[it] = reason
	}
	if !rule.AllowObfuscation {
		rs.NoObfuscation[it] = reason
	}
}

// Build classifies every class in f (and, if includeLibrary is set,
// library classes too) against cfg, returning the root set. Rules whose
// class-name pattern list is specific-only (no wildcard) iterate just
// those classes; all others iterate the whole class table, in parallel,
// per spec.md §4.3 step 1 and §5 ("rules that iterate all classes run in
// parallel").
func Build(f *graph.Factory, cfg *keepconfig.Configuration, log *logrus.Logger, includeLibrary bool) (*RootSet, error) {
	rs := newRootSet()
	all := f.AllClasses()
	if !includeLibrary {
		filtered := all[:0:0]
		for _, c := range all {
			if c.Origin != graph.OriginLibrary {
				filtered = append(filtered, c)
			}
		}
		all = filtered
	}

	var g errgroup.Group
	for i := range cfg.Rules {
		rule := &cfg.Rules[i]
		g.Go(func() error {
			return applyRule(f, rule, all, rs, log)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rs, nil
}

func applyRule(f *graph.Factory, rule *keepconfig.Rule, all []*graph.Class, rs *RootSet, log *logrus.Logger) error {
	candidates := all
	if specific, ok := specificClassNames(rule); ok {
		inScope := make(map[*graph.Class]bool, len(all))
		for _, c := range all {
			inScope[c] = true
		}
		candidates = nil
		for _, name := range specific {
			t := f.CreateType("L" + name + ";")
			if c, ok := f.DefinitionFor(t); ok && inScope[c] {
				candidates = append(candidates, c)
			}
		}
	}

	warned := false
	for _, c := range candidates {
		matched, warn := classMatches(f, rule, c)
		if warn != "" && !warned {
			warned = true
			if log != nil {
				log.WithField("rule", rule.Source).Warn(warn)
			}
			rs.mu.Lock()
			rs.Warnings = append(rs.Warnings, warn)
			rs.mu.Unlock()
		}
		if !matched {
			continue
		}
		applyMatchedRule(f, rule, c, rs)
	}
	return nil
}

// specificClassNames reports the rule's class names when every pattern
// is a concrete name with no wildcard, allowing direct lookup instead of
// a full class-table scan.
func specificClassNames(rule *keepconfig.Rule) ([]string, bool) {
	if len(rule.ClassNamePatterns) == 0 {
		return nil, false
	}
	var names []string
	for _, p := range rule.ClassNamePatterns {
		s := p.String()
		if containsWildcard(s) {
			return nil, false
		}
		names = append(names, dotsToSlashes(s))
	}
	return names, true
}

func containsWildcard(s string) bool {
	for _, r := range s {
		if r == '*' || r == '?' {
			return true
		}
	}
	return false
}

func dotsToSlashes(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out[i] = '/'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

// classMatches implements spec.md §4.3 step 2. warn is non-empty exactly
// when the extends/implements mismatch case fires (one warning, rule
// still accepted).
func classMatches(f *graph.Factory, rule *keepconfig.Rule, c *graph.Class) (matched bool, warn string) {
	if !accessFlagsMatch(rule.AccessFlags, rule.NegatedFlags, classAccessFlags(c)) {
		return false, ""
	}
	if !classTypeMatches(rule.ClassType, rule.Negate, c) {
		return false, ""
	}
	if !rule.Annotation.Matches(annotationDescriptors(c.Annotations)) {
		return false, ""
	}
	if len(rule.ClassNamePatterns) > 0 {
		name := normalizeDescriptor(c.Type.String())
		any := false
		for _, p := range rule.ClassNamePatterns {
			if p.MatchesType(name) {
				any = true
				break
			}
		}
		if !any {
			return false, ""
		}
	}
	if rule.Inheritance != nil {
		viaExtends := inheritanceMatches(f, rule.Inheritance, c, false)
		viaImplements := inheritanceMatches(f, rule.Inheritance, c, true)
		wanted := viaImplements
		if !rule.Inheritance.Implements {
			wanted = viaExtends
		}
		switch {
		case wanted:
			// matches via the relation the rule asked for
		case rule.Inheritance.Implements && viaExtends:
			// Per spec.md §4.3 step 2: the user asked for "implements" but
			// the class only matches via "extends" (or vice versa); still
			// accept the class, but warn once.
			return true, fmt.Sprintf("rule requested 'implements %s' but %s matches via 'extends' instead", rule.Inheritance.Pattern, c.Type)
		case !rule.Inheritance.Implements && viaImplements:
			return true, fmt.Sprintf("rule requested 'extends %s' but %s matches via 'implements' instead", rule.Inheritance.Pattern, c.Type)
		default:
			return false, ""
		}
	}
	return true, ""
}

func inheritanceMatches(f *graph.Factory, clause *keepconfig.InheritanceClause, c *graph.Class, viaImplements bool) bool {
	match := func(other *graph.Class) bool {
		if !clause.Annotation.Matches(annotationDescriptors(other.Annotations)) {
			return false
		}
		return clause.Pattern.MatchesType(normalizeDescriptor(other.Type.String()))
	}
	if viaImplements {
		return graph.AnyImplementedInterfaceMatches(f, c, match)
	}
	return graph.AnySuperTypeMatches(f, c, match)
}

func classAccessFlags(c *graph.Class) keepconfig.AccessFlagSet {
	var f keepconfig.AccessFlagSet
	if c.AccessFlags.IsPublic() {
		f |= keepconfig.AccPublic
	}
	if c.AccessFlags.IsPrivate() {
		f |= keepconfig.AccPrivate
	}
	if c.AccessFlags.IsProtected() {
		f |= keepconfig.AccProtected
	}
	if c.AccessFlags.IsStatic() {
		f |= keepconfig.AccStatic
	}
	if c.AccessFlags.IsFinal() {
		f |= keepconfig.AccFinal
	}
	if c.AccessFlags.IsAbstract() {
		f |= keepconfig.AccAbstract
	}
	if c.AccessFlags.IsSynthetic() {
		f |= keepconfig.AccSynthetic
	}
	return f
}

func memberAccessFlags(a graph.AccessFlags) keepconfig.AccessFlagSet {
	var f keepconfig.AccessFlagSet
	if a.IsPublic() {
		f |= keepconfig.AccPublic
	}
	if a.IsPrivate() {
		f |= keepconfig.AccPrivate
	}
	if a.IsProtected() {
		f |= keepconfig.AccProtected
	}
	if a.IsStatic() {
		f |= keepconfig.AccStatic
	}
	if a.IsFinal() {
		f |= keepconfig.AccFinal
	}
	if a.IsAbstract() {
		f |= keepconfig.AccAbstract
	}
	if a.IsSynthetic() {
		f |= keepconfig.AccSynthetic
	}
	return f
}

func accessFlagsMatch(required, negated, actual keepconfig.AccessFlagSet) bool {
	if required != 0 && actual&required != required {
		return false
	}
	if negated != 0 && actual&negated != 0 {
		return false
	}
	return true
}

func classTypeMatches(want keepconfig.ClassType, negate bool, c *graph.Class) bool {
	var got keepconfig.ClassType
	switch {
	case c.AccessFlags.IsAnnotation():
		got = keepconfig.ClassTypeAnnotation
	case c.AccessFlags.IsInterface():
		got = keepconfig.ClassTypeInterface
	case c.AccessFlags.IsEnum():
		got = keepconfig.ClassTypeEnum
	default:
		got = keepconfig.ClassTypeClass
	}
	if want == keepconfig.ClassTypeAny {
		return true
	}
	matches := want == got
	if negate {
		return !matches
	}
	return matches
}

func annotationDescriptors(anns []graph.Annotation) []string {
	out := make([]string, len(anns))
	for i, a := range anns {
		out[i] = normalizeDescriptor(a.Type.String())
	}
	return out
}

func normalizeDescriptor(d string) string {
	// Primitive descriptors map to the Java keywords used in rules.
	const prims = "VZBCSIJFD"
	keywords := [...]string{"void", "boolean", "byte", "char", "short", "int", "long", "float", "double"}
	for i := 0; len(d) == 1 && i < len(prims); i++ {
		if d[0] == prims[i] {
			return keywords[i]
		}
	}
	s := d
	if len(s) >= 2 && s[0] == 'L' && s[len(s)-1] == ';' {
		s = s[1 : len(s)-1]
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out[i] = '.'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

// applyMatchedRule implements spec.md §4.3 step 3: dispatch on rule kind
// once a class has matched.
func applyMatchedRule(f *graph.Factory, rule *keepconfig.Rule, c *graph.Class, rs *RootSet) {
	switch rule.Kind {
	case keepconfig.KindKeep:
		rs.markClass(c, rule, true, true)
		markMatchingMembers(f, rule, c, rs)
	case keepconfig.KindKeepClassMembers:
		markMatchingMembers(f, rule, c, rs)
	case keepconfig.KindKeepClassesWithMembers:
		if allMemberRulesSatisfied(f, rule, c) {
			rs.markClass(c, rule, true, true)
			markMatchingMembers(f, rule, c, rs)
		}
	case keepconfig.KindCheckDiscard:
		rs.mu.Lock()
		rs.CheckDiscarded[ClassItem(c)] = KeepReason{Rule: rule}
		rs.mu.Unlock()
	case keepconfig.KindWhyAreYouKeeping:
		rs.mu.Lock()
		rs.ReasonAsked[ClassItem(c)] = KeepReason{Rule: rule}
		rs.mu.Unlock()
	case keepconfig.KindKeepPackageNames:
		pkg := packageOf(c.Type.String())
		rs.mu.Lock()
		rs.KeepPackageName[pkg] = KeepReason{Rule: rule}
		rs.mu.Unlock()
	case keepconfig.KindAlwaysInline:
		for _, m := range c.AllMethods() {
			if memberMatchesAny(rule.Members, f, c, m) {
				rs.mu.Lock()
				rs.AlwaysInline[MethodItem(m.Ref)] = KeepReason{Rule: rule}
				rs.mu.Unlock()
			}
		}
	case keepconfig.KindAssumeNoSideEffects:
		for _, mr := range rule.Members {
			matched := matchingMethods(f, c, mr)
			for _, m := range matched {
				rs.mu.Lock()
				rs.NoSideEffects[MethodItem(m.Ref)] = append(rs.NoSideEffects[MethodItem(m.Ref)], mr)
				rs.mu.Unlock()
			}
		}
	case keepconfig.KindAssumeValues:
		for _, mr := range rule.Members {
			matched := matchingMethods(f, c, mr)
			for _, m := range matched {
				rs.mu.Lock()
				rs.AssumedValues[MethodItem(m.Ref)] = append(rs.AssumedValues[MethodItem(m.Ref)], mr)
				rs.mu.Unlock()
			}
		}
	case keepconfig.KindDontWarn:
		// Recorded at the configuration level; nothing to do per-class.
	}

	if rule.IncludeDescriptorClasses {
		addDescriptorDependencies(f, c, rs, rule)
	}
}

// addDescriptorDependencies implements spec.md §4.3 step 4: every
// method's parameter/return types and every field's type are added to
// DependentNoShrinking[item], so they survive iff the item does.
func addDescriptorDependencies(f *graph.Factory, c *graph.Class, rs *RootSet, rule *keepconfig.Rule) {
	for _, m := range c.AllMethods() {
		it := MethodItem(m.Ref)
		for _, p := range m.Ref.Proto.Params {
			if def, ok := f.DefinitionFor(p); ok {
				rs.addDependentNoShrinking(it, ClassItem(def), rule)
			}
		}
		if def, ok := f.DefinitionFor(m.Ref.Proto.Return); ok {
			rs.addDependentNoShrinking(it, ClassItem(def), rule)
		}
	}
	for _, fl := range c.AllFields() {
		if def, ok := f.DefinitionFor(fl.Ref.Type); ok {
			rs.addDependentNoShrinking(FieldItem(fl.Ref), ClassItem(def), rule)
		}
	}
}

func packageOf(descriptor string) string {
	s := normalizeDescriptor(descriptor)
	idx := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}
	return s[:idx]
}

func markMatchingMembers(f *graph.Factory, rule *keepconfig.Rule, c *graph.Class, rs *RootSet) {
	if len(rule.Members) == 0 {
		return
	}
	for _, mr := range rule.Members {
		for _, m := range matchingMethods(f, c, mr) {
			rs.markMember(MethodItem(m.Ref), rule)
		}
		for _, fl := range matchingFields(f, c, mr) {
			rs.markMember(FieldItem(fl.Ref), rule)
		}
	}
}

func allMemberRulesSatisfied(f *graph.Factory, rule *keepconfig.Rule, c *graph.Class) bool {
	for _, mr := range rule.Members {
		if len(matchingMethods(f, c, mr)) == 0 && len(matchingFields(f, c, mr)) == 0 {
			return false
		}
	}
	return true
}

func memberMatchesAny(rules []keepconfig.MemberRule, f *graph.Factory, c *graph.Class, m *graph.EncodedMethod) bool {
	for _, mr := range rules {
		for _, mm := range matchingMethods(f, c, mr) {
			if mm == m {
				return true
			}
		}
	}
	return false
}

func matchingMethods(f *graph.Factory, c *graph.Class, mr keepconfig.MemberRule) []*graph.EncodedMethod {
	switch mr.Kind {
	case keepconfig.MemberField:
		return nil
	}
	var out []*graph.EncodedMethod
	for _, m := range c.AllMethods() {
		if methodMatches(mr, m) {
			out = append(out, m)
		}
	}
	return out
}

func methodMatches(mr keepconfig.MemberRule, m *graph.EncodedMethod) bool {
	switch mr.Kind {
	case keepconfig.MemberAll, keepconfig.MemberAllMethods:
		return accessFlagsMatch(mr.AccessFlags, mr.NegatedFlags, memberAccessFlags(m.AccessFlags))
	case keepconfig.MemberInit:
		return m.AccessFlags.IsConstructor() && m.Ref.Name.String() == "<init>" && paramsMatch(mr, m)
	case keepconfig.MemberConstructor:
		return m.AccessFlags.IsConstructor()
	case keepconfig.MemberMethod:
		if m.Ref.Name.String() == "<init>" || m.Ref.Name.String() == "<clinit>" {
			return false
		}
		if !accessFlagsMatch(mr.AccessFlags, mr.NegatedFlags, memberAccessFlags(m.AccessFlags)) {
			return false
		}
		if !mr.NamePattern.MatchesName(m.Ref.Name.String()) {
			return false
		}
		if mr.TypePattern.String() != "" && !mr.TypePattern.MatchesType(normalizeDescriptor(m.Ref.Proto.Return.String())) {
			return false
		}
		return paramsMatch(mr, m)
	default:
		return false
	}
}

func paramsMatch(mr keepconfig.MemberRule, m *graph.EncodedMethod) bool {
	if mr.ParamPatterns == nil {
		return true
	}
	if len(mr.ParamPatterns) != len(m.Ref.Proto.Params) {
		return false
	}
	for i, p := range mr.ParamPatterns {
		pt := p.String()
		if pt == "..." {
			return true
		}
		if !p.MatchesType(normalizeDescriptor(m.Ref.Proto.Params[i].String())) {
			return false
		}
	}
	return true
}

func matchingFields(f *graph.Factory, c *graph.Class, mr keepconfig.MemberRule) []*graph.EncodedField {
	switch mr.Kind {
	case keepconfig.MemberAll, keepconfig.MemberAllFields:
		var out []*graph.EncodedField
		for _, fl := range c.AllFields() {
			if accessFlagsMatch(mr.AccessFlags, mr.NegatedFlags, memberAccessFlags(fl.AccessFlags)) {
				out = append(out, fl)
			}
		}
		return out
	case keepconfig.MemberField:
		var out []*graph.EncodedField
		for _, fl := range c.AllFields() {
			if !accessFlagsMatch(mr.AccessFlags, mr.NegatedFlags, memberAccessFlags(fl.AccessFlags)) {
				continue
			}
			if !mr.NamePattern.MatchesName(fl.Ref.Name.String()) {
				continue
			}
			if mr.TypePattern.String() != "" && !mr.TypePattern.MatchesType(normalizeDescriptor(fl.Ref.Type.String())) {
				continue
			}
			out = append(out, fl)
		}
		return out
	default:
		return nil
	}
}

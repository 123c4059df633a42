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

// Package keepconfig models Proguard-syntax keep-rule configuration: the
// AST (RuleKind, Rule, MemberRule) and the parser that turns text sources
// into an immutable Configuration (spec.md §4.2).
package keepconfig

// RuleKind enumerates the keep-rule families spec.md §4.2 lists.
type RuleKind int

const (
	KindKeep RuleKind = iota
	KindKeepClassMembers
	KindKeepClassesWithMembers
	KindWhyAreYouKeeping
	KindKeepPackageNames
	KindCheckDiscard
	KindAssumeNoSideEffects
	KindAssumeValues
	KindAlwaysInline
	KindDontWarn
)

// ClassType restricts which kind of type declaration a rule matches.
type ClassType int

const (
	ClassTypeAny ClassType = iota
	ClassTypeClass
	ClassTypeInterface
	ClassTypeAnnotation
	ClassTypeEnum
)

// AccessFlagSet is a bitset over the subset of access modifiers Proguard
// rules can constrain on.
type AccessFlagSet uint32

const (
	AccPublic AccessFlagSet = 1 << iota
	AccPrivate
	AccProtected
	AccStatic
	AccFinal
	AccAbstract
	AccSynthetic
	AccNative
	AccTransient
	AccVolatile
)

// AnnotationMatcher matches an annotation type on a class or member by
// descriptor pattern (supporting Proguard's '*'/'**'/'?' wildcards via
// the shared Pattern matcher in match.go).
type AnnotationMatcher struct {
	Pattern Pattern
}

// Matches reports whether any annotation type descriptor in descriptors
// matches the annotation pattern. A zero-value AnnotationMatcher (no
// pattern set) always matches, i.e. "no annotation constraint".
func (a AnnotationMatcher) Matches(descriptors []string) bool {
	if a.Pattern.raw == "" {
		return true
	}
	for _, d := range descriptors {
		if a.Pattern.MatchesType(d) {
			return true
		}
	}
	return false
}

// InheritanceClause is the optional `extends`/`implements` clause on a
// class rule.
type InheritanceClause struct {
	Implements bool // false => extends; true => implements
	Annotation AnnotationMatcher
	Pattern    Pattern
}

// MemberPatternKind distinguishes the shapes a MemberRule can match.
type MemberPatternKind int

const (
	MemberAll MemberPatternKind = iota
	MemberAllMethods
	MemberAllFields
	MemberInit
	MemberConstructor
	MemberMethod
	MemberField
)

// ReturnValueInterval records a `return a..b` / `return true/false`
// constraint used by assume-values / assume-no-side-effects rules
// (spec.md §4.3 scenario E).
type ReturnValueInterval struct {
	Set      bool
	Lo, Hi   int64
	BoolOnly bool
	BoolVal  bool
}

// MemberRule is one entry of a class rule's member-rule set.
type MemberRule struct {
	Kind MemberPatternKind

	AccessFlags       AccessFlagSet
	NegatedFlags      AccessFlagSet
	Annotation        AnnotationMatcher
	NamePattern       Pattern // matched against method/field name; empty = "all"
	TypePattern       Pattern // return type (method) or field type; empty = "any"
	ParamPatterns     []Pattern
	ReturnInterval     ReturnValueInterval
}

// Rule is one parsed Proguard directive.
type Rule struct {
	Kind RuleKind

	Annotation  AnnotationMatcher
	ClassType   ClassType
	Negate      bool // "!interface", "!public", etc. apply per-flag below; this negates ClassType itself ("!@interface")
	AccessFlags AccessFlagSet
	NegatedFlags AccessFlagSet

	ClassNamePatterns []Pattern
	Inheritance       *InheritanceClause

	Members []MemberRule

	// IncludeDescriptorClasses is Proguard's -keep,includedescriptorclasses
	// modifier (spec.md §4.3 step 4).
	IncludeDescriptorClasses bool
	// AllowShrinking / AllowOptimization / AllowObfuscation are the
	// -keep,allowshrinking etc. modifiers.
	AllowShrinking     bool
	AllowOptimization  bool
	AllowObfuscation   bool

	// Source records where the rule came from, for diagnostics.
	Source SourceLocation
}

// SourceLocation pinpoints a rule's origin for error/warning messages.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// PackageObfuscationMode is the global -repackageclasses /
// -flattenpackagehierarchy setting (spec.md §4.2).
type PackageObfuscationMode int

const (
	PackageObfuscationNone PackageObfuscationMode = iota
	PackageObfuscationRepackage
	PackageObfuscationFlatten
)

// Configuration is the immutable parsed result of one or more Proguard
// sources.
type Configuration struct {
	Rules []Rule

	Shrink               bool
	Obfuscate            bool
	Optimize             bool
	PackageObfuscation   PackageObfuscationMode
	PackagePrefix        string
	AttributeRemoval     []Pattern
	Dictionaries         DictionarySet
	InjectPaths          []string
	LibraryPaths         []string
	IgnoreWarnings       bool
	KeepInnerClasses     bool

	Warnings []string
}

// DictionarySet holds the three dictionary files Proguard supports:
// class names, package names, and obfuscated member names.
type DictionarySet struct {
	ClassNames   []string
	PackageNames []string
	MemberNames  []string
}

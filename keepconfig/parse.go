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

package keepconfig

import (
	"fmt"
	"strconv"
	"strings"

	"android/r8/compileerror"
)

// ParseError carries the (filename, line, column, snippet, message) tuple
// spec.md §4.2 requires.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Snippet string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s (near %q)", e.File, e.Line, e.Column, e.Message, e.Snippet)
}

// These sets fix which of the three fates (ignored, warned, rejected)
// an unrecognized Proguard option falls into, per spec.md §4.2's "the
// sets are fixed".
var (
	ignoredSingleArgOptions = map[string]bool{
		"-injars": true, "-outjars": true, "-libraryjars": true,
		"-basedirectory": true, "-printseeds": true,
	}
	ignoredFlagOptions = map[string]bool{
		"-dontpreverify": true, "-microedition": true, "-forceprocessing": true,
		"-dontnote": true, "-verbose": true,
	}
	warnedSingleArgOptions = map[string]bool{
		"-renamesourcefileattribute": true, "-adaptclassstrings": true,
	}
	unsupportedFlagOptions = map[string]bool{
		"-skipnonpubliclibraryclasses": true, "-useuniqueclassmembernames": true,
	}
)

// source is one input file or string buffer, tokenized lazily.
type source struct {
	name string
	text string
}

// Parse parses one or more Proguard-syntax sources into an immutable
// Configuration. Parse errors short-circuit immediately, matching
// spec.md §4.2's "Failure" contract (fatal, with location).
func Parse(sources ...source) (*Configuration, error) {
	cfg := &Configuration{
		Shrink: true, Obfuscate: true, Optimize: true,
	}
	for _, src := range sources {
		p := &parser{src: src, cfg: cfg}
		if err := p.run(); err != nil {
			return nil, compileerror.At(compileerror.KindConfiguration, src.name, err)
		}
	}
	return cfg, nil
}

// Source builds a named text source (a real file's contents, already
// read by the caller — file I/O is a codec-layer concern per spec.md
// §1, not this package's).
func Source(name, text string) source { return source{name: name, text: text} }

type parser struct {
	src  source
	cfg  *Configuration
	toks []token
	pos  int
}

type token struct {
	text        string
	line, col   int
}

func (p *parser) run() error {
	p.toks = tokenize(p.src.text)
	for p.pos < len(p.toks) {
		if err := p.parseOne(); err != nil {
			return err
		}
	}
	return nil
}

// tokenize splits Proguard-syntax text into tokens. Outside a
// parenthesized parameter list, whitespace, '{', '}', and ',' are
// delimiters and ';' terminates (and is kept attached to) the current
// token. Inside a parameter list ("method(" through its matching ")"),
// whitespace is elided and ',' is kept attached, since
// "method(int, int)" and "method(int,int)" are the same member
// signature — this is what lets the rest of the parser treat a whole
// "name(params);" as a unit.
func tokenize(text string) []token {
	var toks []token
	line := 1
	col := 0
	var cur strings.Builder
	curLine, curCol := 1, 1
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, token{text: cur.String(), line: curLine, col: curCol})
			cur.Reset()
		}
	}
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]
		col++
		switch {
		case r == '\n':
			if depth == 0 {
				flush()
			}
			line++
			col = 0
		case r == '#':
			flush()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			continue
		case r == '(':
			depth++
			if cur.Len() == 0 {
				curLine, curCol = line, col
			}
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case depth > 0 && (r == ' ' || r == '\t' || r == '\r'):
			// elided inside a parameter list
		case r == ' ' || r == '\t' || r == '\r':
			flush()
		case r == ';':
			cur.WriteRune(r)
			flush()
		case depth > 0:
			cur.WriteRune(r)
		case r == '{' || r == '}' || r == ',':
			flush()
			toks = append(toks, token{text: string(r), line: line, col: col})
		default:
			if cur.Len() == 0 {
				curLine, curCol = line, col
			}
			cur.WriteRune(r)
		}
		i++
	}
	flush()
	return toks
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) errf(t token, format string, args ...any) error {
	snippet := t.text
	return &ParseError{File: p.src.name, Line: t.line, Column: t.col, Snippet: snippet, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOne() error {
	tok, ok := p.next()
	if !ok {
		return nil
	}
	opt := tok.text
	switch opt {
	case "-keep":
		return p.parseClassRule(KindKeep, tok)
	case "-keepclassmembers":
		return p.parseClassRule(KindKeepClassMembers, tok)
	case "-keepclasseswithmembers":
		return p.parseClassRule(KindKeepClassesWithMembers, tok)
	case "-whyareyoukeeping":
		return p.parseClassRule(KindWhyAreYouKeeping, tok)
	case "-keeppackagenames":
		return p.parseClassRule(KindKeepPackageNames, tok)
	case "-checkdiscard":
		return p.parseClassRule(KindCheckDiscard, tok)
	case "-assumenosideeffects":
		return p.parseClassRule(KindAssumeNoSideEffects, tok)
	case "-assumevalues":
		return p.parseClassRule(KindAssumeValues, tok)
	case "-alwaysinline":
		return p.parseClassRule(KindAlwaysInline, tok)
	case "-dontwarn":
		return p.parseClassRule(KindDontWarn, tok)
	case "-dontshrink":
		p.cfg.Shrink = false
		return nil
	case "-dontoptimize":
		p.cfg.Optimize = false
		return nil
	case "-dontobfuscate":
		p.cfg.Obfuscate = false
		return nil
	case "-ignorewarnings":
		p.cfg.IgnoreWarnings = true
		return nil
	case "-keepinnerclasses", "-keepattributes":
		// -keepattributes is accepted but its value (an attribute
		// pattern list) is consumed and discarded; AttributeRemoval is
		// not populated. Both options share the "consume tokens up to
		// the next option" loop below.
		if opt == "-keepinnerclasses" {
			p.cfg.KeepInnerClasses = true
		}
		p.consumeValueList()
		return nil
	case "-repackageclasses":
		p.cfg.PackageObfuscation = PackageObfuscationRepackage
		if v, ok := p.peekValueArg(); ok {
			p.cfg.PackagePrefix = v
			p.next()
		}
		return nil
	case "-flattenpackagehierarchy":
		p.cfg.PackageObfuscation = PackageObfuscationFlatten
		if v, ok := p.peekValueArg(); ok {
			p.cfg.PackagePrefix = v
			p.next()
		}
		return nil
	case "-classobfuscationdictionary":
		if v, ok := p.next(); ok {
			p.cfg.Dictionaries.ClassNames = append(p.cfg.Dictionaries.ClassNames, v.text)
		}
		return nil
	case "-packageobfuscationdictionary":
		if v, ok := p.next(); ok {
			p.cfg.Dictionaries.PackageNames = append(p.cfg.Dictionaries.PackageNames, v.text)
		}
		return nil
	case "-obfuscationdictionary":
		if v, ok := p.next(); ok {
			p.cfg.Dictionaries.MemberNames = append(p.cfg.Dictionaries.MemberNames, v.text)
		}
		return nil
	case "-injars", "-outjars", "-libraryjars":
		if v, ok := p.next(); ok {
			if opt == "-libraryjars" {
				p.cfg.LibraryPaths = append(p.cfg.LibraryPaths, v.text)
			} else {
				p.cfg.InjectPaths = append(p.cfg.InjectPaths, v.text)
			}
		}
		return nil
	default:
		return p.parseUnknownOption(opt, tok)
	}
}

// peekValueArg reports whether the next token looks like a bare value
// (not another -option), without consuming it.
func (p *parser) peekValueArg() (string, bool) {
	t, ok := p.peek()
	if !ok || strings.HasPrefix(t.text, "-") {
		return "", false
	}
	return t.text, true
}

func (p *parser) consumeValueList() {
	for {
		t, ok := p.peek()
		if !ok || strings.HasPrefix(t.text, "-") || t.text == "{" {
			return
		}
		p.next()
		if t.text != "," {
			continue
		}
	}
}

func (p *parser) parseUnknownOption(opt string, tok token) error {
	switch {
	case ignoredFlagOptions[opt]:
		return nil
	case ignoredSingleArgOptions[opt]:
		p.next()
		return nil
	case warnedSingleArgOptions[opt]:
		p.cfg.Warnings = append(p.cfg.Warnings, fmt.Sprintf("%s:%d: warning: option %s is recognized but has no effect", p.src.name, tok.line, opt))
		p.next()
		return nil
	case unsupportedFlagOptions[opt]:
		p.cfg.Warnings = append(p.cfg.Warnings, fmt.Sprintf("%s:%d: warning: option %s is not supported and was ignored", p.src.name, tok.line, opt))
		return nil
	case strings.HasPrefix(opt, "-"):
		return p.errf(tok, "unknown option %q", opt)
	default:
		return p.errf(tok, "expected an option, found %q", opt)
	}
}

// parseClassRule parses the shared grammar for every rule kind that
// starts with a class specification: optional @annotation, class-type
// keyword, access-flag list, class-name pattern list, optional
// extends/implements clause, and an optional `{ member-rule* }` block.
func (p *parser) parseClassRule(kind RuleKind, head token) error {
	rule := Rule{Kind: kind, ClassType: ClassTypeAny, Source: SourceLocation{File: p.src.name, Line: head.line, Column: head.col}}

	// Modifiers follow the option name directly ("-keep,allowshrinking
	// class Foo"); specParsed tells the modifier loop below whether to
	// come back here for the class specification.
	specParsed := false
classSpec:
	for {
		t, ok := p.peek()
		if !ok {
			break
		}
		switch {
		case t.text == "," && !specParsed:
			goto modifiers
		case t.text == "@interface" || t.text == "!@interface":
			p.next()
			rule.ClassType = ClassTypeAnnotation
			rule.Negate = t.text == "!@interface"
		case strings.HasPrefix(t.text, "@"):
			p.next()
			rule.Annotation = AnnotationMatcher{Pattern: NewPattern(strings.TrimPrefix(t.text, "@"))}
		case t.text == "class":
			p.next()
			rule.ClassType = ClassTypeClass
		case t.text == "interface":
			p.next()
			rule.ClassType = ClassTypeInterface
		case t.text == "enum":
			p.next()
			rule.ClassType = ClassTypeEnum
		case t.text == "!interface":
			p.next()
			rule.ClassType = ClassTypeInterface
			rule.Negate = true
		case isAccessKeyword(t.text):
			p.next()
			flag, negated := parseAccessKeyword(t.text)
			if negated {
				rule.NegatedFlags |= flag
			} else {
				rule.AccessFlags |= flag
			}
		default:
			goto names
		}
	}
names:
	for {
		t, ok := p.peek()
		if !ok || t.text == "{" || t.text == "extends" || t.text == "implements" || strings.HasPrefix(t.text, "-") {
			break
		}
		p.next()
		if t.text == "," {
			continue
		}
		rule.ClassNamePatterns = append(rule.ClassNamePatterns, NewPattern(t.text))
	}

	if t, ok := p.peek(); ok && (t.text == "extends" || t.text == "implements") {
		p.next()
		clause := &InheritanceClause{Implements: t.text == "implements"}
		if at, ok := p.peek(); ok && strings.HasPrefix(at.text, "@") {
			p.next()
			clause.Annotation = AnnotationMatcher{Pattern: NewPattern(strings.TrimPrefix(at.text, "@"))}
		}
		nameTok, ok := p.next()
		if !ok {
			return p.errf(t, "expected a class name after %q", t.text)
		}
		clause.Pattern = NewPattern(nameTok.text)
		rule.Inheritance = clause
	}

	specParsed = true
modifiers:
	for {
		t, ok := p.peek()
		if !ok || t.text != "," {
			break
		}
		p.next()
		switch v, ok := p.next(); {
		case !ok:
			return p.errf(t, "expected a modifier after ','")
		case v.text == "includedescriptorclasses":
			rule.IncludeDescriptorClasses = true
		case v.text == "allowshrinking":
			rule.AllowShrinking = true
		case v.text == "allowoptimization":
			rule.AllowOptimization = true
		case v.text == "allowobfuscation":
			rule.AllowObfuscation = true
		default:
			return p.errf(v, "unknown -keep modifier %q", v.text)
		}
	}
	if !specParsed {
		goto classSpec
	}

	if t, ok := p.peek(); ok && t.text == "{" {
		p.next()
		members, err := p.parseMemberBlock()
		if err != nil {
			return err
		}
		rule.Members = members
	}

	p.cfg.Rules = append(p.cfg.Rules, rule)
	return nil
}

func (p *parser) parseMemberBlock() ([]MemberRule, error) {
	var members []MemberRule
	for {
		t, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated member block")
		}
		if t.text == "}" {
			p.next()
			return members, nil
		}
		m, err := p.parseMemberRule()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
}

func (p *parser) parseMemberRule() (MemberRule, error) {
	var m MemberRule
	for {
		t, ok := p.peek()
		if !ok {
			return m, fmt.Errorf("unterminated member rule")
		}
		switch {
		case strings.HasPrefix(t.text, "@"):
			p.next()
			m.Annotation = AnnotationMatcher{Pattern: NewPattern(strings.TrimPrefix(t.text, "@"))}
		case isAccessKeyword(t.text):
			p.next()
			flag, negated := parseAccessKeyword(t.text)
			if negated {
				m.NegatedFlags |= flag
			} else {
				m.AccessFlags |= flag
			}
		default:
			goto body
		}
	}
body:
	t, ok := p.next()
	if !ok {
		return m, fmt.Errorf("expected a member pattern")
	}
	switch {
	case t.text == "*;":
		m.Kind = MemberAll
	case t.text == "<methods>;":
		m.Kind = MemberAllMethods
	case t.text == "<fields>;":
		m.Kind = MemberAllFields
	case strings.HasPrefix(t.text, "<init>"):
		m.Kind = MemberInit
		m.NamePattern = NewPattern("<init>")
		paramsText := strings.TrimPrefix(t.text, "<init>")
		paramsText = strings.TrimSuffix(paramsText, ";")
		paramsText = strings.TrimPrefix(strings.TrimSuffix(paramsText, ")"), "(")
		if paramsText != "" {
			for _, part := range strings.Split(paramsText, ",") {
				m.ParamPatterns = append(m.ParamPatterns, NewPattern(strings.TrimSpace(part)))
			}
		}
	default:
		return p.parseTypedMember(m, t.text)
	}
	return m, nil
}

// parseTypedMember handles `ReturnType name(Params);` or `Type name;`,
// and the trailing `return <bool>` / `return lo..hi` clause
// -assumevalues / -assumenosideeffects allow in place of the terminating
// ';' (spec.md §4.3 scenario E), once the leading type token has
// already been consumed as typeTok.
func (p *parser) parseTypedMember(m MemberRule, typeTok string) (MemberRule, error) {
	m.TypePattern = NewPattern(typeTok)

	nameTok, ok := p.next()
	if !ok {
		return m, fmt.Errorf("expected a member name after type %q", typeTok)
	}
	name := nameTok.text
	if idx := strings.IndexByte(name, '('); idx >= 0 {
		m.Kind = MemberMethod
		m.NamePattern = NewPattern(name[:idx])
		paramsText := strings.TrimSuffix(name[idx+1:], ");")
		paramsText = strings.TrimSuffix(paramsText, ")")
		if paramsText != "" {
			for _, part := range strings.Split(paramsText, ",") {
				m.ParamPatterns = append(m.ParamPatterns, NewPattern(strings.TrimSpace(part)))
			}
		}
	} else {
		m.Kind = MemberField
		m.NamePattern = NewPattern(strings.TrimSuffix(name, ";"))
	}

	if strings.HasSuffix(name, ";") {
		return m, nil
	}
	return p.parseTrailingReturnClause(m)
}

// parseTrailingReturnClause consumes an optional `return <value>;`
// clause following a member signature that did not itself end in ';'.
func (p *parser) parseTrailingReturnClause(m MemberRule) (MemberRule, error) {
	t, ok := p.peek()
	if !ok || t.text != "return" {
		return m, fmt.Errorf("expected ';' or a 'return' clause after member signature")
	}
	p.next()
	val, ok := p.next()
	if !ok {
		return m, fmt.Errorf("expected a value after 'return'")
	}
	text := strings.TrimSuffix(val.text, ";")
	switch text {
	case "true":
		m.ReturnInterval = ReturnValueInterval{Set: true, BoolOnly: true, BoolVal: true}
	case "false":
		m.ReturnInterval = ReturnValueInterval{Set: true, BoolOnly: true, BoolVal: false}
	default:
		lo, hi, cut := strings.Cut(text, "..")
		if !cut {
			return m, fmt.Errorf("unrecognized return value %q", val.text)
		}
		loN, err1 := strconv.ParseInt(lo, 10, 64)
		hiN, err2 := strconv.ParseInt(hi, 10, 64)
		if err1 != nil || err2 != nil {
			return m, fmt.Errorf("unrecognized return interval %q", val.text)
		}
		m.ReturnInterval = ReturnValueInterval{Set: true, Lo: loN, Hi: hiN}
	}
	return m, nil
}

func isAccessKeyword(tok string) bool {
	base := strings.TrimPrefix(tok, "!")
	switch base {
	case "public", "private", "protected", "static", "final", "abstract",
		"synthetic", "native", "transient", "volatile":
		return true
	}
	return false
}

func parseAccessKeyword(tok string) (AccessFlagSet, bool) {
	negated := strings.HasPrefix(tok, "!")
	base := strings.TrimPrefix(tok, "!")
	var flag AccessFlagSet
	switch base {
	case "public":
		flag = AccPublic
	case "private":
		flag = AccPrivate
	case "protected":
		flag = AccProtected
	case "static":
		flag = AccStatic
	case "final":
		flag = AccFinal
	case "abstract":
		flag = AccAbstract
	case "synthetic":
		flag = AccSynthetic
	case "native":
		flag = AccNative
	case "transient":
		flag = AccTransient
	case "volatile":
		flag = AccVolatile
	}
	return flag, negated
}

// ParseFiles is a convenience for the CLI driver: it reads each path
// (via readFile, injected so the codec/I/O boundary stays outside this
// package per spec.md §1) and parses them all into one Configuration.
func ParseFiles(paths []string, readFile func(string) (string, error)) (*Configuration, error) {
	var srcs []source
	for _, path := range paths {
		text, err := readFile(path)
		if err != nil {
			return nil, compileerror.At(compileerror.KindConfiguration, path, err)
		}
		srcs = append(srcs, Source(path, text))
	}
	return Parse(srcs...)
}

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

import "strings"

// Pattern is a compiled Proguard name pattern: '?' matches any single
// character, '*' matches any run of characters except '/' or '.'
// (within one package/class-name segment), '**' matches any run
// including separators.
type Pattern struct {
	raw string
}

// NewPattern compiles raw into a Pattern. Compilation never fails —
// Proguard patterns have no syntax errors, only semantics — so this
// returns a value type, not (Pattern, error).
func NewPattern(raw string) Pattern {
	return Pattern{raw: raw}
}

func (p Pattern) String() string { return p.raw }

// MatchesType matches p (in '.' or '/'-separated class-name form —
// callers normalize separators before calling) against a class
// descriptor's dotted name.
func (p Pattern) MatchesType(dotted string) bool {
	if p.raw == "" {
		return true
	}
	return globMatch(normalizeSeparators(p.raw), normalizeSeparators(dotted), 0, 0)
}

// MatchesName matches a plain (unseparated) identifier, e.g. a method or
// field name.
func (p Pattern) MatchesName(name string) bool {
	if p.raw == "" {
		return true
	}
	return globMatch(p.raw, name, 0, 0)
}

func normalizeSeparators(s string) string {
	return strings.ReplaceAll(s, "/", ".")
}

// globMatch implements the '?', '*', '**' semantics recursively over
// byte indices into pattern and text.
func globMatch(pattern, text string, pi, ti int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			if pi+1 < len(pattern) && pattern[pi+1] == '*' {
				// '**' matches any run, including '.'.
				for pi < len(pattern) && pattern[pi] == '*' {
					pi++
				}
				if pi == len(pattern) {
					return true
				}
				for t := ti; t <= len(text); t++ {
					if globMatch(pattern, text, pi, t) {
						return true
					}
				}
				return false
			}
			// Single '*' matches any run excluding '.'.
			pi++
			if pi == len(pattern) {
				return !strings.Contains(text[ti:], ".")
			}
			for t := ti; t <= len(text); t++ {
				if t > ti && text[t-1] == '.' {
					break
				}
				if globMatch(pattern, text, pi, t) {
					return true
				}
			}
			return false
		case '?':
			if ti >= len(text) {
				return false
			}
			pi++
			ti++
		default:
			if ti >= len(text) || pattern[pi] != text[ti] {
				return false
			}
			pi++
			ti++
		}
	}
	return ti == len(text)
}

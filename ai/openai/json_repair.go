// Copyright 2025 The gutty Authors
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

package openai

import "strings"

// repairJSON fixes the formatting slips vision models commonly make in JSON
// mode: object keys missing one or both quotes and trailing commas before a
// closing bracket. String contents are never touched.
func repairJSON(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 16)

	runes := []rune(s)
	inString := false
	expectKey := false

	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if inString {
			out.WriteRune(ch)
			if ch == '\\' && i+1 < len(runes) {
				i++
				out.WriteRune(runes[i])
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			expectKey = false
			out.WriteRune(ch)
		case ch == '{':
			expectKey = true
			out.WriteRune(ch)
		case ch == ',':
			if next := nextSignificant(runes, i+1); next == '}' || next == ']' {
				continue
			}
			expectKey = insideObject(out.String())
			out.WriteRune(ch)
		case expectKey && (isLetter(ch) || ch == '_'):
			end := i
			for end < len(runes) && (isLetter(runes[end]) || runes[end] == '_' || (runes[end] >= '0' && runes[end] <= '9')) {
				end++
			}
			key := string(runes[i:end])
			out.WriteString(`"` + key + `"`)
			// a dangling closing quote belongs to the key
			if end < len(runes) && runes[end] == '"' {
				end++
			}
			i = end - 1
			expectKey = false
		default:
			if ch != ' ' && ch != '\n' && ch != '\t' && ch != '\r' {
				expectKey = false
			}
			out.WriteRune(ch)
		}
	}

	return out.String()
}

// nextSignificant returns the first non-whitespace rune at or after i, or 0.
func nextSignificant(runes []rune, i int) rune {
	for ; i < len(runes); i++ {
		switch runes[i] {
		case ' ', '\n', '\t', '\r':
			continue
		}
		return runes[i]
	}
	return 0
}

// insideObject reports whether the innermost open bracket of the already
// written prefix is an object brace.
func insideObject(prefix string) bool {
	depth := 0
	inString := false
	for i := len(prefix) - 1; i >= 0; i-- {
		ch := prefix[i]
		if ch == '"' && (i == 0 || prefix[i-1] != '\\') {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '}', ']':
			depth++
		case '{':
			if depth == 0 {
				return true
			}
			depth--
		case '[':
			if depth == 0 {
				return false
			}
			depth--
		}
	}
	return false
}

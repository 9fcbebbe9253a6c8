package template

import (
	"regexp"
	"strings"

	"github.com/albertocavalcante/amdpack/internal/jsparse"
)

// scanKeys is the fallback for object literals the parser rejects, which
// in templates usually means an interpolation left a bare placeholder
// where a value or a comma was expected. It tracks nesting, strings and
// comments only, and returns the keys of objects exactly depth levels
// deep. A key is the last string or word before the first colon following
// an opening brace or a comma. ok is false when src holds no balanced
// object.
func scanKeys(src string, depth int) (keys []string, ok bool) {
	type frame struct {
		object    bool
		expectKey bool
	}
	var (
		stack   []frame
		last    string
		hasLast bool
		seen    bool
	)
	keys = []string{}

	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
			continue
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, false
			}
			i += 2 + end + 2
			continue
		case ch == '"' || ch == '\'' || ch == '`':
			j := i + 1
			for j < len(src) && src[j] != ch {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				return nil, false
			}
			last, hasLast = jsparse.Unescape(src[i+1:j]), true
			i = j + 1
			continue
		case isWordByte(ch):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			last, hasLast = src[i:j], true
			i = j
			continue
		}

		switch ch {
		case '{', '[':
			seen = seen || ch == '{'
			stack = append(stack, frame{object: ch == '{', expectKey: ch == '{'})
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].object != (ch == '}') {
				return nil, false
			}
			stack = stack[:len(stack)-1]
		case ',':
			if len(stack) > 0 && stack[len(stack)-1].object {
				stack[len(stack)-1].expectKey = true
			}
		case ':':
			if n := len(stack); n > 0 && stack[n-1].expectKey {
				if n == depth && hasLast {
					keys = append(keys, last)
				}
				stack[n-1].expectKey = false
			}
		}
		hasLast = false
		i++
	}
	return keys, seen && len(stack) == 0
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}

// objectAfter returns the balanced object literal whose opening brace ends
// the first match of re in s.
func objectAfter(s string, re *regexp.Regexp) (string, bool) {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	start := loc[1] - 1
	depth := 0
	for i := start; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\'', '`':
			for i++; i < len(s) && s[i] != c; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

package bundle

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// quote escapes s for a single-quoted JavaScript string literal. The output
// is ASCII only and matches jsesc's defaults: single quotes and
// backslashes escaped, double quotes kept, common control characters in
// their short form, everything else outside printable ASCII as \x or \u
// escapes. Bytes that are not valid UTF-8 are escaped as \xHH.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&b, `\x%02X`, s[i])
			i++
			continue
		}
		i += size

		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			// \0 followed by a digit would read as a legacy octal escape.
			if i < len(s) && s[i] >= '0' && s[i] <= '9' {
				b.WriteString(`\x00`)
			} else {
				b.WriteString(`\0`)
			}
		default:
			switch {
			case r >= 0x20 && r < 0x7F:
				b.WriteRune(r)
			case r < 0x100:
				fmt.Fprintf(&b, `\x%02X`, r)
			case r < 0x10000:
				fmt.Fprintf(&b, `\u%04X`, r)
			default:
				r -= 0x10000
				fmt.Fprintf(&b, `\u%04X\u%04X`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			}
		}
	}
	return b.String()
}

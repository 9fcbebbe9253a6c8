package jsparse

import (
	"bytes"
	"strings"
)

// Placeholder replaces server-side template tags in tolerant mode. It is a
// valid identifier so that `var x = <?= $json ?>;` still parses.
const Placeholder = "__amdpack_tpl__"

var (
	tagOpen  = []byte("<?")
	tagClose = []byte("?>")
)

// StripTemplateTags replaces every "<?php ... ?>" and "<?= ... ?>" span with
// Placeholder. An unterminated tag runs to the end of the input.
func StripTemplateTags(src []byte) []byte {
	if !bytes.Contains(src, tagOpen) {
		return src
	}
	var out bytes.Buffer
	out.Grow(len(src))
	for {
		i := bytes.Index(src, tagOpen)
		if i < 0 {
			out.Write(src)
			return out.Bytes()
		}
		rest := src[i+len(tagOpen):]
		if !bytes.HasPrefix(rest, []byte("php")) && !bytes.HasPrefix(rest, []byte("=")) {
			out.Write(src[:i+len(tagOpen)])
			src = rest
			continue
		}
		out.Write(src[:i])
		out.WriteString(Placeholder)
		j := bytes.Index(rest, tagClose)
		if j < 0 {
			return out.Bytes()
		}
		src = rest[j+len(tagClose):]
	}
}

// HasPlaceholder reports whether s contains a replaced template tag.
func HasPlaceholder(s string) bool {
	return strings.Contains(s, Placeholder)
}

package bundle

import (
	"encoding/json"
	"strings"
)

// sourceMap builds a version 3 source map with one segment per mapped
// generated line, pointing at column 0 of the original line.
type sourceMap struct {
	file    string
	sources []string
	lines   []*lineMapping // one per generated line, nil when unmapped
}

type lineMapping struct {
	source int
	line   int
}

// unmapped appends n generated lines without a source.
func (m *sourceMap) unmapped(n int) {
	for i := 0; i < n; i++ {
		m.lines = append(m.lines, nil)
	}
}

// mapped appends n generated lines mapping to lines first.. of source.
func (m *sourceMap) mapped(source, first, n int) {
	for i := 0; i < n; i++ {
		m.lines = append(m.lines, &lineMapping{source: source, line: first + i})
	}
}

func (m *sourceMap) addSource(name string) int {
	m.sources = append(m.sources, name)
	return len(m.sources) - 1
}

// mappings encodes the "mappings" field. Source index and line are deltas
// against the previous segment; the generated column resets every line
// and is always 0 here.
func (m *sourceMap) mappings() string {
	var b strings.Builder
	prevSource, prevLine := 0, 0
	for i, l := range m.lines {
		if i > 0 {
			b.WriteByte(';')
		}
		if l == nil {
			continue
		}
		writeVLQ(&b, 0)
		writeVLQ(&b, l.source-prevSource)
		writeVLQ(&b, l.line-prevLine)
		writeVLQ(&b, 0)
		prevSource, prevLine = l.source, l.line
	}
	return b.String()
}

// MarshalJSON renders the map.
func (m *sourceMap) MarshalJSON() ([]byte, error) {
	sources := m.sources
	if sources == nil {
		sources = []string{}
	}
	return json.Marshal(struct {
		Version  int      `json:"version"`
		File     string   `json:"file"`
		Sources  []string `json:"sources"`
		Names    []string `json:"names"`
		Mappings string   `json:"mappings"`
	}{3, m.file, sources, []string{}, m.mappings()})
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// writeVLQ writes v as a base64 variable-length quantity: the sign in the
// lowest bit, five payload bits per digit, 0x20 as the continuation bit.
func writeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 0x1F
		u >>= 5
		if u > 0 {
			digit |= 0x20
		}
		b.WriteByte(base64Digits[digit])
		if u == 0 {
			return
		}
	}
}

// Package graph holds the AMD dependency graph and the computations made
// over it: the bundle dependency order, cycle detection and output formats.
package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Graph maps a module id to its direct dependency ids.
//
// Keys keep insertion order so every rendering of a graph is stable across
// runs. Duplicate edges, self edges and cycles are allowed.
type Graph struct {
	ids   []string
	edges map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// Add creates an empty entry for id. It reports false if id was already
// present.
func (g *Graph) Add(id string) bool {
	if _, ok := g.edges[id]; ok {
		return false
	}
	g.ids = append(g.ids, id)
	g.edges[id] = []string{}
	return true
}

// AddEdge appends dep to the dependency list of from, creating from if
// needed.
func (g *Graph) AddEdge(from, dep string) {
	g.Add(from)
	g.edges[from] = append(g.edges[from], dep)
}

// Set replaces the dependency list of id.
func (g *Graph) Set(id string, deps ...string) {
	g.Add(id)
	g.edges[id] = append([]string{}, deps...)
}

// Has reports whether id is a key of the graph.
func (g *Graph) Has(id string) bool {
	if g == nil {
		return false
	}
	_, ok := g.edges[id]
	return ok
}

// Deps returns the direct dependencies of id. The slice must not be
// modified.
func (g *Graph) Deps(id string) []string {
	if g == nil {
		return nil
	}
	return g.edges[id]
}

// IDs returns the module ids in insertion order.
func (g *Graph) IDs() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.ids...)
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.ids)
}

// EdgeCount returns the total number of edges.
func (g *Graph) EdgeCount() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, deps := range g.edges {
		n += len(deps)
	}
	return n
}

// MarshalJSON encodes the graph as an object with keys in insertion order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		deps, err := json.Marshal(g.edges[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(deps)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of id to dependency list, keeping the
// key order of the input.
func (g *Graph) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("graph: expected object, got %v", tok)
	}
	*g = Graph{edges: make(map[string][]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("graph: expected key, got %v", tok)
		}
		var deps []string
		if err := dec.Decode(&deps); err != nil {
			return fmt.Errorf("graph: deps of %q: %w", id, err)
		}
		g.Set(id, deps...)
	}
	_, err = dec.Token()
	return err
}

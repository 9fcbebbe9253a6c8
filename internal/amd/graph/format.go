package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// Format is a graph output format.
type Format string

// Supported output formats.
const (
	FormatJSON  Format = "json"
	FormatDOT   Format = "dot"
	FormatList  Format = "list"
	FormatCount Format = "count"
)

// ParseFormat parses a format name. The empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "":
		return FormatJSON, nil
	case "dot":
		return FormatDOT, nil
	case "list":
		return FormatList, nil
	case "count":
		return FormatCount, nil
	default:
		return "", fmt.Errorf("unknown output format: %q (valid: json, dot, list, count)", s)
	}
}

// Formatter renders a graph and its entry points.
type Formatter struct {
	format Format
}

// NewFormatter creates a formatter for f.
func NewFormatter(f Format) *Formatter {
	return &Formatter{format: f}
}

// Write renders g to w. Entry points are highlighted in DOT output and
// listed first in list output.
func (f *Formatter) Write(w io.Writer, g *Graph, entries []string) error {
	switch f.format {
	case FormatDOT:
		return WriteDOT(w, g, entries)
	case FormatList:
		return writeList(w, g, entries)
	case FormatCount:
		_, err := fmt.Fprintf(w, "%d modules, %d edges\n", g.Len(), g.EdgeCount())
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(g)
	}
}

// WriteDOT renders g as a GraphViz digraph.
func WriteDOT(w io.Writer, g *Graph, entries []string) error {
	if _, err := io.WriteString(w, "digraph {\n"); err != nil {
		return err
	}
	for _, id := range entries {
		if !g.Has(id) {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s [shape=box, style=bold]\n", strconv.Quote(id)); err != nil {
			return err
		}
	}
	for _, id := range g.ids {
		for _, dep := range g.edges[id] {
			if _, err := fmt.Fprintf(w, "  %s -> %s\n", strconv.Quote(id), strconv.Quote(dep)); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "}\n")
	return err
}

func writeList(w io.Writer, g *Graph, entries []string) error {
	ids := make([]string, 0, g.Len())
	for _, id := range entries {
		if g.Has(id) && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	for _, id := range g.ids {
		if !slices.Contains(entries, id) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

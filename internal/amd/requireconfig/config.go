// Package requireconfig evaluates RequireJS configuration files into a
// merged Config without executing them.
//
// A generated requirejs-config.js holds one require.config({...}) call per
// module, each normally wrapped in its own IIFE. Evaluate walks the syntax
// tree, evaluates each call's argument as a literal and reduces the results
// with the loader's merge rules.
package requireconfig

import (
	"bytes"
	"encoding/json"
)

// Config is the merged RequireJS configuration for one theme and locale.
// It is read-only once Evaluate returns.
type Config struct {
	BaseURL string `json:"baseUrl,omitempty"`

	// Paths maps an id prefix to a path prefix. Array values keep their
	// first entry, which is the one the loader tries first.
	Paths map[string]string `json:"paths,omitempty"`

	// Map is context -> id prefix -> replacement; "*" is the global context.
	Map map[string]map[string]string `json:"map,omitempty"`

	Shim map[string]Shim `json:"shim,omitempty"`

	// Mixins maps a base module to its mixins in declaration order.
	Mixins map[string]*MixinSet `json:"mixins,omitempty"`

	// Deps are the entry points, concatenated across all config calls.
	Deps []string `json:"deps,omitempty"`

	Bundles map[string][]string `json:"bundles,omitempty"`

	// ModuleConfig holds the remaining "config" keys (everything but
	// mixins), merged deeply and kept as plain JSON-compatible values.
	ModuleConfig map[string]any `json:"config,omitempty"`
}

// Shim describes how to load a non-AMD script.
type Shim struct {
	Deps    []string `json:"deps,omitempty"`
	Exports string   `json:"exports,omitempty"`
}

// MixinEntry is one mixin and whether it is enabled.
type MixinEntry struct {
	Module  string
	Enabled bool
}

// MixinSet is an insertion-ordered set of mixins for one base module.
type MixinSet struct {
	Entries []MixinEntry
}

// Set updates the entry for module in place or appends it.
func (s *MixinSet) Set(module string, enabled bool) {
	for i := range s.Entries {
		if s.Entries[i].Module == module {
			s.Entries[i].Enabled = enabled
			return
		}
	}
	s.Entries = append(s.Entries, MixinEntry{Module: module, Enabled: enabled})
}

// Enabled returns the enabled mixins in order.
func (s *MixinSet) Enabled() []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, e := range s.Entries {
		if e.Enabled {
			out = append(out, e.Module)
		}
	}
	return out
}

// MarshalJSON writes the set as an object preserving declaration order.
func (s *MixinSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Module)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		if e.Enabled {
			buf.WriteString(":true")
		} else {
			buf.WriteString(":false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// New returns an empty Config with all maps allocated.
func New() *Config {
	return &Config{
		Paths:        make(map[string]string),
		Map:          make(map[string]map[string]string),
		Shim:         make(map[string]Shim),
		Mixins:       make(map[string]*MixinSet),
		Bundles:      make(map[string][]string),
		ModuleConfig: make(map[string]any),
	}
}

// MixinsFor returns the enabled mixins configured for id.
func (c *Config) MixinsFor(id string) []string {
	if c == nil {
		return nil
	}
	return c.Mixins[id].Enabled()
}

// ShimFor returns the shim configured for id.
func (c *Config) ShimFor(id string) (Shim, bool) {
	if c == nil {
		return Shim{}, false
	}
	s, ok := c.Shim[id]
	return s, ok
}

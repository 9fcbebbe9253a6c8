package graph

import "slices"

// BuiltIns are the dependency ids provided by the loader itself. They
// appear in graphs but never in bundles.
var BuiltIns = []string{"exports", "require", "module"}

// DefaultExcluded lists resources that are never bundled.
//
// Translation dictionaries are fetched by the storefront per locale and
// must stay out of the shared bundle.
var DefaultExcluded = []string{"text!js-translation.json"}

// IsBuiltIn reports whether id is provided by the loader.
func IsBuiltIn(id string) bool {
	return slices.Contains(BuiltIns, id)
}

type bundleOptions struct {
	excluded map[string]bool
}

// Option configures ComputeBundleDeps.
type Option func(*bundleOptions)

// WithExcluded adds ids to the list of resources left out of the bundle.
func WithExcluded(ids ...string) Option {
	return func(o *bundleOptions) {
		for _, id := range ids {
			o.excluded[id] = true
		}
	}
}

// ComputeBundleDeps returns the modules reachable from entries in the
// order the loader executes them: depth first, a module's dependencies
// visited before the next sibling. Each module appears once; built-ins and
// excluded resources are skipped. Ids missing from g are kept as leaves.
func ComputeBundleDeps(g *Graph, entries []string, opts ...Option) []string {
	o := bundleOptions{excluded: make(map[string]bool)}
	for _, id := range DefaultExcluded {
		o.excluded[id] = true
	}
	for _, opt := range opts {
		opt(&o)
	}

	added := make(map[string]bool)
	result := []string{}
	stack := slices.Clone(entries)
	for len(stack) > 0 {
		id := stack[0]
		stack = stack[1:]
		if added[id] || IsBuiltIn(id) || o.excluded[id] {
			continue
		}
		added[id] = true
		result = append(result, id)

		if deps := g.Deps(id); len(deps) > 0 {
			stack = append(slices.Clone(deps), stack...)
		}
	}
	return result
}

package graph

// DetectCycles returns the dependency cycles of g. Each cycle starts and
// ends with the same id, e.g. [a b a]. Modules are visited in insertion
// order so the result is stable.
func (g *Graph) DetectCycles() [][]string {
	if g == nil {
		return nil
	}

	var cycles [][]string
	state := make(map[string]int) // 0: unvisited, 1: in progress, 2: done
	var path []string

	var dfs func(id string)
	dfs = func(id string) {
		switch state[id] {
		case 2:
			return
		case 1:
			for i, p := range path {
				if p == id {
					cycle := make([]string, len(path)-i+1)
					copy(cycle, path[i:])
					cycle[len(cycle)-1] = id
					cycles = append(cycles, cycle)
					break
				}
			}
			return
		}

		state[id] = 1
		path = append(path, id)
		for _, dep := range g.edges[id] {
			if g.Has(dep) {
				dfs(dep)
			}
		}
		path = path[:len(path)-1]
		state[id] = 2
	}

	for _, id := range g.ids {
		if state[id] == 0 {
			dfs(id)
		}
	}
	return cycles
}

// Dependents returns the ids with a direct edge to id, in insertion order.
func (g *Graph) Dependents(id string) []string {
	if g == nil {
		return nil
	}
	var out []string
	for _, from := range g.ids {
		for _, dep := range g.edges[from] {
			if dep == id {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

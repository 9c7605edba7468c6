package native

import "sort"

// Returns names in dependency order.
//
// Strongly connected components are collapsed so cycles are legal; the
// members of each component are emitted together in name order. Among
// components whose dependencies are all emitted, the one with the smallest
// name goes first.
func order(names []string, edges map[string][]string) []string {
	comps := components(names, edges)

	compOf := make(map[string]int, len(names))
	for i, c := range comps {
		for _, n := range c {
			compOf[n] = i
		}
	}

	// pending[i] counts distinct components i still waits for; users[j]
	// lists the components that depend on j.
	pending := make([]int, len(comps))
	users := make([][]int, len(comps))
	for i, c := range comps {
		seen := map[int]bool{}
		for _, n := range c {
			for _, dep := range edges[n] {
				j := compOf[dep]
				if j == i || seen[j] {
					continue
				}
				seen[j] = true
				pending[i]++
				users[j] = append(users[j], i)
			}
		}
	}

	var ready []int
	for i := range comps {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]string, 0, len(names))
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return comps[ready[a]][0] < comps[ready[b]][0] })
		i := ready[0]
		ready = ready[1:]
		out = append(out, comps[i]...)
		for _, u := range users[i] {
			pending[u]--
			if pending[u] == 0 {
				ready = append(ready, u)
			}
		}
	}
	return out
}

// Returns the strongly connected components of the graph, each sorted by
// name (Tarjan's algorithm).
func components(names []string, edges map[string][]string) [][]string {
	index := make(map[string]int, len(names))
	low := make(map[string]int, len(names))
	onStack := make(map[string]bool, len(names))
	var stack []string
	var comps [][]string
	next := 0

	var visit func(string)
	visit = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			comps = append(comps, comp)
		}
	}

	for _, n := range names {
		if _, seen := index[n]; !seen {
			visit(n)
		}
	}
	return comps
}

package graph

import (
	"fmt"
	"sort"
	"strings"
)

type CycleError struct {
	UnresolvedNodeIds []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("workflow graph contains a cycle through nodes [%s]", strings.Join(e.UnresolvedNodeIds, ", "))
}

// Plan computes a total order of the graph's nodes consistent with every
// edge, using Kahn's algorithm. Ties are broken by taking the
// lexicographically smallest ready node id, so two planners given the same
// definition produce byte-identical plans. That determinism is what makes
// the plan cacheable and the scheduler's behavior reproducible.
//
// Pure function, O(N + E). Returns CycleError naming the unresolved nodes
// when the graph is not a DAG.
func Plan(g *GraphModel) ([]string, error) {
	inDegree := make(map[string]int, g.Size())
	for id := range g.nodes {
		inDegree[id] = len(g.Predecessors(id))
	}

	ready := make([]string, 0, len(g.roots))
	ready = append(ready, g.roots...)
	sort.Strings(ready)

	order := make([]string, 0, g.Size())
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		changed := false
		for _, succ := range g.Successors(id) {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
				changed = true
			}
		}
		if changed {
			sort.Strings(ready)
		}
	}

	if len(order) < g.Size() {
		var unresolved []string
		for id, deg := range inDegree {
			if deg > 0 {
				unresolved = append(unresolved, id)
			}
		}
		sort.Strings(unresolved)
		return nil, CycleError{UnresolvedNodeIds: unresolved}
	}
	return order, nil
}

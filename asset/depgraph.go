package asset

import "sort"

// DependencyGraph is a directed graph over IDs with two adjacency lists —
// out ("A depends on B") and in ("B is depended on by A") — maintained
// acyclic by construction (spec §3). It carries no locking of its own; the
// registry guards all access with its single RWMutex (spec §4.B/§5).
type DependencyGraph struct {
	out map[ID][]ID // A -> [B, ...]: A depends on B
	in  map[ID][]ID // B -> [A, ...]: A depends on B
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{out: make(map[ID][]ID), in: make(map[ID][]ID)}
}

// WouldCreateCycle reports whether adding edge a->b (a depends on b) would
// create a cycle, i.e. whether b already transitively depends on a. DFS
// from b along out-edges; if a is reached, the edge is rejected.
func (g *DependencyGraph) WouldCreateCycle(a, b ID) bool {
	if a == b {
		return true
	}
	visited := make(map[ID]bool)
	var dfs func(n ID) bool
	dfs = func(n ID) bool {
		if n == a {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, next := range g.out[n] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(b)
}

// AddEdge inserts a->b (a depends on b) without cycle checking; callers
// (registry.AddDependency) must call WouldCreateCycle first.
func (g *DependencyGraph) AddEdge(a, b ID) {
	g.out[a] = appendUnique(g.out[a], b)
	g.in[b] = appendUnique(g.in[b], a)
}

// RemoveEdge deletes a->b if present.
func (g *DependencyGraph) RemoveEdge(a, b ID) {
	g.out[a] = removeID(g.out[a], b)
	g.in[b] = removeID(g.in[b], a)
}

// RemoveNode deletes id and every edge touching it.
func (g *DependencyGraph) RemoveNode(id ID) {
	for _, dep := range g.out[id] {
		g.in[dep] = removeID(g.in[dep], id)
	}
	for _, dependent := range g.in[id] {
		g.out[dependent] = removeID(g.out[dependent], id)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// Dependencies returns the ordered list of IDs that id directly depends on.
func (g *DependencyGraph) Dependencies(id ID) []ID { return g.out[id] }

// Dependents returns the IDs that directly depend on id.
func (g *DependencyGraph) Dependents(id ID) []ID { return g.in[id] }

// TransitiveDependents does a BFS over reverse edges from id, returning
// every transitive dependent — used by the hot-reload cascade (spec §4.J
// step 4: "mark id and all transitive dependents (BFS over reverse
// dependency edges) Stale").
func (g *DependencyGraph) TransitiveDependents(id ID) []ID {
	seen := map[ID]bool{id: true}
	queue := []ID{id}
	var out []ID
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dependent := range g.in[n] {
			if !seen[dependent] {
				seen[dependent] = true
				out = append(out, dependent)
				queue = append(queue, dependent)
			}
		}
	}
	return out
}

// TopologicalOrder runs Kahn's algorithm restricted to the subgraph induced
// by ids, placing dependencies before dependents. Ties (equal in-degree,
// available simultaneously) are broken by ascending ID for determinism
// (spec §4.B: "Stable for equal ranks by ascending AssetId").
func (g *DependencyGraph) TopologicalOrder(ids []ID) []ID {
	set := make(map[ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	indeg := make(map[ID]int, len(ids))
	for _, id := range ids {
		indeg[id] = 0
	}
	for _, id := range ids {
		for _, dep := range g.out[id] {
			if set[dep] {
				indeg[id]++
			}
		}
	}

	ready := make([]ID, 0, len(ids))
	for _, id := range ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	out := make([]ID, 0, len(ids))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		var unlocked []ID
		for _, dependent := range g.in[n] {
			if !set[dependent] {
				continue
			}
			indeg[dependent]--
			if indeg[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		if len(unlocked) > 0 {
			sort.Slice(unlocked, func(i, j int) bool { return unlocked[i] < unlocked[j] })
			ready = mergeSortedIDs(ready, unlocked)
		}
	}
	return out
}

func mergeSortedIDs(a, b []ID) []ID {
	out := make([]ID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func appendUnique(list []ID, id ID) []ID {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func removeID(list []ID, id ID) []ID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

package graph

import "sort"

// maxReportedCycles caps cycle enumeration so pathological graphs cannot
// stall indexing. Circular-dependency reports past this point add no signal.
const maxReportedCycles = 1000

// Cycle is one elementary cycle, listed from its smallest unit id.
type Cycle struct {
	UnitIDs []string `json:"unitIds"`
}

// DetectCycles enumerates the elementary cycles of the dependency graph
// (Johnson's algorithm over strongly connected components). Each cycle is
// rotated to start at its smallest unit id and the result is sorted, so the
// output is independent of insertion order and of any query start node.
func (s *Store) DetectCycles() []Cycle {
	s.mu.RLock()
	// Snapshot adjacency into index form so the walk runs without the lock.
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	adj := make([][]int, len(ids))
	for from, tos := range s.out {
		fi := idx[from]
		for to := range tos {
			if from == to {
				continue
			}
			adj[fi] = append(adj[fi], idx[to])
		}
	}
	s.mu.RUnlock()

	for i := range adj {
		sort.Ints(adj[i])
	}

	j := &johnson{
		ids:      ids,
		adj:      adj,
		blocked:  make([]bool, len(ids)),
		blockMap: make([]map[int]struct{}, len(ids)),
	}
	j.run()

	sort.Slice(j.cycles, func(a, b int) bool {
		ca, cb := j.cycles[a].UnitIDs, j.cycles[b].UnitIDs
		for i := 0; i < len(ca) && i < len(cb); i++ {
			if ca[i] != cb[i] {
				return ca[i] < cb[i]
			}
		}
		return len(ca) < len(cb)
	})
	return j.cycles
}

// johnson holds the working state of Johnson's elementary-circuit search.
type johnson struct {
	ids      []string
	adj      [][]int
	blocked  []bool
	blockMap []map[int]struct{}
	stack    []int
	start    int
	scc      map[int]struct{}
	cycles   []Cycle
	full     bool
}

func (j *johnson) run() {
	n := len(j.ids)
	for start := 0; start < n && !j.full; start++ {
		scc := j.componentAt(start)
		if len(scc) == 0 {
			continue
		}
		j.start = start
		j.scc = scc
		for v := range scc {
			j.blocked[v] = false
			j.blockMap[v] = nil
		}
		j.circuit(start)
	}
}

// componentAt returns the strongly connected component containing vertex
// start within the subgraph induced on vertices >= start, or nil if start
// lies on no cycle in that subgraph.
func (j *johnson) componentAt(start int) map[int]struct{} {
	t := &tarjan{
		adj:     j.adj,
		min:     start,
		index:   make([]int, len(j.adj)),
		lowlink: make([]int, len(j.adj)),
		onStack: make([]bool, len(j.adj)),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	t.strongconnect(start)

	comp := t.componentOf(start)
	if comp == nil {
		return nil
	}
	if len(comp) == 1 {
		// A trivial component cycles only via a self-loop, which the model
		// forbids and the snapshot already dropped.
		return nil
	}
	set := make(map[int]struct{}, len(comp))
	for _, v := range comp {
		set[v] = struct{}{}
	}
	return set
}

func (j *johnson) circuit(v int) bool {
	if j.full {
		return true
	}
	found := false
	j.stack = append(j.stack, v)
	j.blocked[v] = true

	for _, w := range j.adj[v] {
		if _, in := j.scc[w]; !in || w < j.start {
			continue
		}
		if w == j.start {
			j.record()
			found = true
		} else if !j.blocked[w] {
			if j.circuit(w) {
				found = true
			}
		}
		if j.full {
			break
		}
	}

	if found {
		j.unblock(v)
	} else {
		for _, w := range j.adj[v] {
			if _, in := j.scc[w]; !in || w < j.start {
				continue
			}
			if j.blockMap[w] == nil {
				j.blockMap[w] = make(map[int]struct{})
			}
			j.blockMap[w][v] = struct{}{}
		}
	}

	j.stack = j.stack[:len(j.stack)-1]
	return found
}

func (j *johnson) unblock(v int) {
	j.blocked[v] = false
	for w := range j.blockMap[v] {
		if j.blocked[w] {
			j.unblock(w)
		}
	}
	j.blockMap[v] = nil
}

func (j *johnson) record() {
	if len(j.cycles) >= maxReportedCycles {
		j.full = true
		return
	}
	cyc := make([]string, len(j.stack))
	for i, v := range j.stack {
		cyc[i] = j.ids[v]
	}
	// The stack starts at j.start, which is the smallest index in the
	// component by construction, and ids were indexed in sorted order, so
	// the cycle already begins at its smallest unit id.
	j.cycles = append(j.cycles, Cycle{UnitIDs: cyc})
}

// tarjan computes strongly connected components restricted to vertices >= min.
type tarjan struct {
	adj     [][]int
	min     int
	counter int
	index   []int
	lowlink []int
	onStack []bool
	stack   []int
	comps   [][]int
}

func (t *tarjan) strongconnect(v int) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if w < t.min {
			continue
		}
		if t.index[w] < 0 {
			t.strongconnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] && t.index[w] < t.lowlink[v] {
			t.lowlink[v] = t.index[w]
		}
	}

	if t.lowlink[v] == t.index[v] {
		var comp []int
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.comps = append(t.comps, comp)
	}
}

func (t *tarjan) componentOf(v int) []int {
	for _, comp := range t.comps {
		for _, w := range comp {
			if w == v {
				return comp
			}
		}
	}
	return nil
}

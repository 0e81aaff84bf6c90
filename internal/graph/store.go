// Package graph provides the in-memory dependency graph store: structural
// units and the directed edges between them, with BFS proximity queries and
// cycle detection.
package graph

import (
	"sort"
	"sync"

	"codescope/internal/errors"
	"codescope/internal/model"
)

// Store is a directed graph of structural units keyed by opaque unit ids.
// The adjacency structure is explicit (no mutually-referencing objects), so
// traversal terminates regardless of cycles.
//
// Store is safe for concurrent use. Readers are never blocked by readers;
// writes are applied per file batch, so a query observes either none or all
// of a file's units and edges.
type Store struct {
	mu sync.RWMutex

	units  map[string]model.StructuralUnit
	byPath map[string]map[string]struct{} // path -> unit id set

	// Adjacency keyed by (from, to) with one edge per kind.
	out map[string]map[string]map[model.EdgeKind]model.DependencyEdge
	in  map[string]map[string]map[model.EdgeKind]model.DependencyEdge
}

// NewStore creates an empty graph store.
func NewStore() *Store {
	return &Store{
		units:  make(map[string]model.StructuralUnit),
		byPath: make(map[string]map[string]struct{}),
		out:    make(map[string]map[string]map[model.EdgeKind]model.DependencyEdge),
		in:     make(map[string]map[string]map[model.EdgeKind]model.DependencyEdge),
	}
}

// Neighbor is a unit reached by traversal, with the shortest-path distance
// in edge counts from the origin.
type Neighbor struct {
	UnitID   string `json:"unitId"`
	Distance int    `json:"distance"`
}

// UpsertUnits inserts or replaces units. Idempotent.
func (s *Store) UpsertUnits(units []model.StructuralUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range units {
		if u.ID == "" {
			return errors.New(errors.InvalidArgument, "unit with empty id")
		}
		s.insertUnitLocked(u)
	}
	return nil
}

// UpsertEdges inserts or replaces edges, last-write-wins per (from, to, kind).
// Self-loops are rejected. An edge referencing a unit the store does not know
// fails the whole batch with GraphCorruption and leaves the store unchanged.
func (s *Store) UpsertEdges(edges []model.DependencyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate before mutating: no partial edge set becomes visible.
	for _, e := range edges {
		if !e.Valid() {
			return errors.New(errors.InvalidArgument, "invalid edge %s -> %s (%s)", e.From, e.To, e.Kind)
		}
		if _, ok := s.units[e.From]; !ok {
			return errors.New(errors.GraphCorruption, "edge source %s references missing unit", e.From)
		}
		if _, ok := s.units[e.To]; !ok {
			return errors.New(errors.GraphCorruption, "edge target %s references missing unit", e.To)
		}
	}

	for _, e := range edges {
		s.insertEdgeLocked(e)
	}
	return nil
}

// ApplyFileBatch atomically replaces a file's units with the batch contents
// and inserts the batch edges. Every edge endpoint must exist either in the
// store or in the batch; otherwise the batch is rejected with GraphCorruption
// and prior state is left intact. The returned ids are the units the
// replacement removed without re-adding, including shared units whose last
// referencing file this was; callers use them to drop vector records.
func (s *Store) ApplyFileBatch(batch model.FileBatch) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := make(map[string]struct{}, len(batch.Units))
	for _, u := range batch.Units {
		if u.ID == "" {
			return nil, errors.New(errors.InvalidArgument, "unit with empty id in batch for %s", batch.Path)
		}
		incoming[u.ID] = struct{}{}
	}

	removed := s.byPath[batch.Path]
	known := func(id string) bool {
		if _, ok := incoming[id]; ok {
			return true
		}
		u, ok := s.units[id]
		if !ok {
			return false
		}
		// A unit scheduled for removal does not count unless re-added.
		if removed != nil {
			if _, gone := removed[id]; gone {
				return false
			}
		}
		// A shared unit survives only while some other file still points
		// at it.
		if u.Path == "" && !s.referencedOutsideLocked(id, removed) {
			return false
		}
		return true
	}
	for _, e := range batch.Edges {
		if !e.Valid() {
			return nil, errors.New(errors.InvalidArgument, "invalid edge %s -> %s (%s)", e.From, e.To, e.Kind)
		}
		if !known(e.From) || !known(e.To) {
			return nil, errors.New(errors.GraphCorruption,
				"edge %s -> %s in batch for %s references a missing unit", e.From, e.To, batch.Path)
		}
	}

	// Validation passed; apply under the same lock.
	dropped := s.removeFileLocked(batch.Path)
	for _, u := range batch.Units {
		s.insertUnitLocked(u)
	}
	for _, e := range batch.Edges {
		s.insertEdgeLocked(e)
	}

	var gone []string
	for _, id := range dropped {
		if _, readded := incoming[id]; !readded {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone, nil
}

// RemoveFile deletes all units parsed from path and cascades to every edge
// where such a unit is source or target. Shared units that lose their last
// referencing file go with it. Returns the removed unit ids, sorted.
func (s *Store) RemoveFile(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeFileLocked(path)
	sort.Strings(removed)
	return removed
}

// RemoveUnit deletes one unit and all its incident edges.
func (s *Store) RemoveUnit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeUnitLocked(id)
}

// Unit returns the unit with the given id.
func (s *Store) Unit(id string) (model.StructuralUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	return u, ok
}

// UnitsByPath returns the units parsed from the given file, sorted by id.
func (s *Store) UnitsByPath(path string) []model.StructuralUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPath[path]
	out := make([]model.StructuralUnit, 0, len(ids))
	for id := range ids {
		out = append(out, s.units[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Units returns all units, sorted by id.
func (s *Store) Units() []model.StructuralUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StructuralUnit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges, sorted by (from, to, kind).
func (s *Store) Edges() []model.DependencyEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DependencyEdge
	for _, tos := range s.out {
		for _, kinds := range tos {
			for _, e := range kinds {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// EdgeKinds returns the kinds of the edges from one unit to another,
// sorted for determinism.
func (s *Store) EdgeKinds(from, to string) []model.EdgeKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := s.out[from][to]
	if len(kinds) == 0 {
		return nil
	}
	out := make([]model.EdgeKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NumUnits returns the number of units in the store.
func (s *Store) NumUnits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// NumEdges returns the number of edges in the store.
func (s *Store) NumEdges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, tos := range s.out {
		for _, kinds := range tos {
			n += len(kinds)
		}
	}
	return n
}

// Neighbors returns units reachable from id within maxDepth edges in the
// given direction, with shortest-path distance. The origin itself is not
// included. Results are sorted by distance, then unit id, for determinism.
func (s *Store) Neighbors(id string, dir model.Direction, maxDepth int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.units[id]; !ok {
		return nil, errors.New(errors.NotFound, "unit %s not found", id)
	}
	if maxDepth <= 0 {
		return nil, nil
	}

	dist := map[string]int{id: 0}
	frontier := []string{id}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range s.adjacentLocked(cur, dir) {
				if _, seen := dist[nb]; seen {
					continue
				}
				dist[nb] = depth
				next = append(next, nb)
			}
		}
		frontier = next
	}

	out := make([]Neighbor, 0, len(dist)-1)
	for nid, d := range dist {
		if nid == id {
			continue
		}
		out = append(out, Neighbor{UnitID: nid, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out, nil
}

// Distances returns the shortest-path distance from origin to each unit in
// targets, traversing dir up to maxDepth. Unreachable targets are absent
// from the result.
func (s *Store) Distances(origin string, targets map[string]struct{}, dir model.Direction, maxDepth int) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int)
	if _, ok := s.units[origin]; !ok || maxDepth <= 0 {
		return result
	}
	if _, ok := targets[origin]; ok {
		result[origin] = 0
	}

	dist := map[string]int{origin: 0}
	frontier := []string{origin}
	remaining := len(targets) - len(result)

	for depth := 1; depth <= maxDepth && len(frontier) > 0 && remaining > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range s.adjacentLocked(cur, dir) {
				if _, seen := dist[nb]; seen {
					continue
				}
				dist[nb] = depth
				next = append(next, nb)
				if _, want := targets[nb]; want {
					result[nb] = depth
					remaining--
				}
			}
		}
		frontier = next
	}
	return result
}

// VerifyIntegrity checks that every edge references existing units.
// Returns GraphCorruption naming the first dangling reference found.
func (s *Store) VerifyIntegrity() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for from, tos := range s.out {
		if _, ok := s.units[from]; !ok {
			return errors.New(errors.GraphCorruption, "edge source %s references missing unit", from)
		}
		for to := range tos {
			if _, ok := s.units[to]; !ok {
				return errors.New(errors.GraphCorruption, "edge target %s references missing unit", to)
			}
		}
	}
	return nil
}

// --- internals (callers hold the lock) ---

func (s *Store) insertUnitLocked(u model.StructuralUnit) {
	if old, ok := s.units[u.ID]; ok && old.Path != u.Path {
		// Re-homed unit: drop the stale path membership.
		if set := s.byPath[old.Path]; set != nil {
			delete(set, u.ID)
			if len(set) == 0 {
				delete(s.byPath, old.Path)
			}
		}
	}
	s.units[u.ID] = u
	// Units without a path (shared module units) belong to no file: they
	// must never be cascade-deleted by one importer's re-index.
	if u.Path == "" {
		return
	}
	set := s.byPath[u.Path]
	if set == nil {
		set = make(map[string]struct{})
		s.byPath[u.Path] = set
	}
	set[u.ID] = struct{}{}
}

func (s *Store) insertEdgeLocked(e model.DependencyEdge) {
	tos := s.out[e.From]
	if tos == nil {
		tos = make(map[string]map[model.EdgeKind]model.DependencyEdge)
		s.out[e.From] = tos
	}
	kinds := tos[e.To]
	if kinds == nil {
		kinds = make(map[model.EdgeKind]model.DependencyEdge)
		tos[e.To] = kinds
	}
	kinds[e.Kind] = e

	froms := s.in[e.To]
	if froms == nil {
		froms = make(map[string]map[model.EdgeKind]model.DependencyEdge)
		s.in[e.To] = froms
	}
	kinds = froms[e.From]
	if kinds == nil {
		kinds = make(map[model.EdgeKind]model.DependencyEdge)
		froms[e.From] = kinds
	}
	kinds[e.Kind] = e
}

// removeFileLocked removes all units owned by path, then garbage-collects
// shared units that no longer have any in-edge. Returns every removed id.
func (s *Store) removeFileLocked(path string) []string {
	var removed []string
	shared := make(map[string]struct{})
	for id := range s.byPath[path] {
		for to := range s.out[id] {
			if u, ok := s.units[to]; ok && u.Path == "" {
				shared[to] = struct{}{}
			}
		}
		s.removeUnitLocked(id)
		removed = append(removed, id)
	}
	delete(s.byPath, path)
	for id := range shared {
		if len(s.in[id]) == 0 {
			s.removeUnitLocked(id)
			removed = append(removed, id)
		}
	}
	return removed
}

// referencedOutsideLocked reports whether a unit has an in-edge from any
// unit outside the excluded set.
func (s *Store) referencedOutsideLocked(id string, excluded map[string]struct{}) bool {
	for from := range s.in[id] {
		if excluded != nil {
			if _, gone := excluded[from]; gone {
				continue
			}
		}
		return true
	}
	return false
}

func (s *Store) removeUnitLocked(id string) {
	u, ok := s.units[id]
	if !ok {
		return
	}
	delete(s.units, id)
	if set := s.byPath[u.Path]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byPath, u.Path)
		}
	}

	for to := range s.out[id] {
		if froms := s.in[to]; froms != nil {
			delete(froms, id)
			if len(froms) == 0 {
				delete(s.in, to)
			}
		}
	}
	delete(s.out, id)

	for from := range s.in[id] {
		if tos := s.out[from]; tos != nil {
			delete(tos, id)
			if len(tos) == 0 {
				delete(s.out, from)
			}
		}
	}
	delete(s.in, id)
}

// adjacentLocked returns neighbor ids in sorted order so traversal is
// deterministic.
func (s *Store) adjacentLocked(id string, dir model.Direction) []string {
	seen := make(map[string]struct{})
	if dir == model.DirOut || dir == model.DirBoth {
		for to := range s.out[id] {
			seen[to] = struct{}{}
		}
	}
	if dir == model.DirIn || dir == model.DirBoth {
		for from := range s.in[id] {
			seen[from] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package graph

import (
	"sort"

	"codescope/internal/errors"
	"codescope/internal/model"
)

// Subgraph is the slice of the dependency graph around one unit.
type Subgraph struct {
	Origin    string                 `json:"origin"`
	Direction model.Direction        `json:"direction"`
	MaxDepth  int                    `json:"maxDepth"`
	Units     []model.StructuralUnit `json:"units"`
	Edges     []model.DependencyEdge `json:"edges"`
	Distances map[string]int         `json:"distances"`
}

// Extract returns the subgraph within maxDepth of origin in the given
// direction: the reached units plus every edge whose endpoints are both
// included. Deterministically ordered.
func (s *Store) Extract(origin string, dir model.Direction, maxDepth int) (*Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.units[origin]; !ok {
		return nil, errors.New(errors.NotFound, "unit %s not found", origin)
	}

	include := map[string]int{origin: 0}
	frontier := []string{origin}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range s.adjacentLocked(cur, dir) {
				if _, seen := include[nb]; seen {
					continue
				}
				include[nb] = depth
				next = append(next, nb)
			}
		}
		frontier = next
	}

	sub := &Subgraph{
		Origin:    origin,
		Direction: dir,
		MaxDepth:  maxDepth,
		Distances: include,
	}
	for id := range include {
		sub.Units = append(sub.Units, s.units[id])
	}
	sort.Slice(sub.Units, func(i, j int) bool { return sub.Units[i].ID < sub.Units[j].ID })

	for from, tos := range s.out {
		if _, ok := include[from]; !ok {
			continue
		}
		for to, kinds := range tos {
			if _, ok := include[to]; !ok {
				continue
			}
			for _, e := range kinds {
				sub.Edges = append(sub.Edges, e)
			}
		}
	}
	sort.Slice(sub.Edges, func(i, j int) bool { return sub.Edges[i].Key() < sub.Edges[j].Key() })

	return sub, nil
}

package graph

import (
	"reflect"
	"testing"

	"codescope/internal/model"
)

func buildGraph(t *testing.T, ids []string, edges [][2]string) *Store {
	t.Helper()
	s := NewStore()
	units := make([]model.StructuralUnit, 0, len(ids))
	for _, id := range ids {
		units = append(units, unit(id, id+".go"))
	}
	if err := s.UpsertUnits(units); err != nil {
		t.Fatal(err)
	}
	es := make([]model.DependencyEdge, 0, len(edges))
	for _, e := range edges {
		es = append(es, edge(e[0], e[1], model.EdgeImports))
	}
	if err := s.UpsertEdges(es); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name  string
		ids   []string
		edges [][2]string
		want  []Cycle
	}{
		{
			name:  "acyclic",
			ids:   []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  nil,
		},
		{
			name:  "triangle",
			ids:   []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
			want:  []Cycle{{UnitIDs: []string{"a", "b", "c"}}},
		},
		{
			name:  "two cycles sharing a node",
			ids:   []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "b"}},
			want: []Cycle{
				{UnitIDs: []string{"a", "b"}},
				{UnitIDs: []string{"b", "c"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildGraph(t, tt.ids, tt.edges)
			got := s.DetectCycles()
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectCycles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectCyclesStartsAtSmallestID(t *testing.T) {
	// Insertion order deliberately starts mid-cycle.
	s := buildGraph(t, []string{"m", "a", "z"}, [][2]string{{"m", "z"}, {"z", "a"}, {"a", "m"}})
	got := s.DetectCycles()
	if len(got) != 1 {
		t.Fatalf("cycles = %d, want 1", len(got))
	}
	want := []string{"a", "m", "z"}
	if !reflect.DeepEqual(got[0].UnitIDs, want) {
		t.Errorf("cycle = %v, want %v", got[0].UnitIDs, want)
	}
}

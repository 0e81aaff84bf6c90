package graph

import (
	"reflect"
	"testing"

	"codescope/internal/errors"
	"codescope/internal/model"
)

func unit(id, path string) model.StructuralUnit {
	return model.StructuralUnit{
		ID:          id,
		Path:        path,
		Name:        id,
		Kind:        model.KindFunction,
		Language:    "go",
		ContentHash: "h-" + id,
	}
}

func edge(from, to string, kind model.EdgeKind) model.DependencyEdge {
	return model.DependencyEdge{From: from, To: to, Kind: kind, Confidence: 1.0}
}

func TestUpsertEdgesRejectsMissingEndpoint(t *testing.T) {
	s := NewStore()
	if err := s.UpsertUnits([]model.StructuralUnit{unit("a", "a.go")}); err != nil {
		t.Fatalf("UpsertUnits: %v", err)
	}

	err := s.UpsertEdges([]model.DependencyEdge{edge("a", "ghost", model.EdgeCalls)})
	if !errors.Is(err, errors.GraphCorruption) {
		t.Fatalf("expected GraphCorruption, got %v", err)
	}
	if s.NumEdges() != 0 {
		t.Fatalf("edge count after rejected upsert = %d, want 0", s.NumEdges())
	}
}

func TestUpsertEdgesIdempotent(t *testing.T) {
	s := NewStore()
	if err := s.UpsertUnits([]model.StructuralUnit{unit("a", "a.go"), unit("b", "b.go")}); err != nil {
		t.Fatalf("UpsertUnits: %v", err)
	}
	e := edge("a", "b", model.EdgeCalls)
	for i := 0; i < 3; i++ {
		if err := s.UpsertEdges([]model.DependencyEdge{e}); err != nil {
			t.Fatalf("UpsertEdges: %v", err)
		}
	}
	if s.NumEdges() != 1 {
		t.Fatalf("edge count = %d, want 1", s.NumEdges())
	}
}

func TestInsertionOrderDoesNotMatter(t *testing.T) {
	units := []model.StructuralUnit{unit("a", "a.go"), unit("b", "b.go"), unit("c", "c.go")}
	edges := []model.DependencyEdge{
		edge("a", "b", model.EdgeCalls),
		edge("b", "c", model.EdgeImports),
		edge("a", "c", model.EdgeReferences),
	}

	s1 := NewStore()
	if err := s1.UpsertUnits(units); err != nil {
		t.Fatal(err)
	}
	if err := s1.UpsertEdges(edges); err != nil {
		t.Fatal(err)
	}

	s2 := NewStore()
	reversedU := []model.StructuralUnit{units[2], units[0], units[1]}
	reversedE := []model.DependencyEdge{edges[2], edges[0], edges[1]}
	if err := s2.UpsertUnits(reversedU); err != nil {
		t.Fatal(err)
	}
	if err := s2.UpsertEdges(reversedE); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(s1.Units(), s2.Units()) {
		t.Errorf("unit listings differ by insertion order")
	}
	if !reflect.DeepEqual(s1.Edges(), s2.Edges()) {
		t.Errorf("edge listings differ by insertion order")
	}
}

func TestApplyFileBatchReplacesFile(t *testing.T) {
	s := NewStore()
	first := model.FileBatch{
		Path:  "a.go",
		Units: []model.StructuralUnit{unit("f", "a.go"), unit("old", "a.go")},
		Edges: []model.DependencyEdge{edge("old", "f", model.EdgeReferences)},
	}
	if _, err := s.ApplyFileBatch(first); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	second := model.FileBatch{
		Path:  "a.go",
		Units: []model.StructuralUnit{unit("f", "a.go"), unit("new", "a.go")},
		Edges: []model.DependencyEdge{edge("new", "f", model.EdgeReferences)},
	}
	removed, err := s.ApplyFileBatch(second)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{"old"}) {
		t.Errorf("removed ids = %v, want [old]", removed)
	}

	if _, ok := s.Unit("old"); ok {
		t.Errorf("unit old survived re-parse of its file")
	}
	if _, ok := s.Unit("new"); !ok {
		t.Errorf("unit new missing after batch apply")
	}
	if s.NumEdges() != 1 {
		t.Errorf("edge count = %d, want 1", s.NumEdges())
	}
}

func TestApplyFileBatchRejectsDanglingEdge(t *testing.T) {
	s := NewStore()
	batch := model.FileBatch{
		Path:  "a.go",
		Units: []model.StructuralUnit{unit("f", "a.go")},
		Edges: []model.DependencyEdge{edge("f", "missing", model.EdgeCalls)},
	}
	_, err := s.ApplyFileBatch(batch)
	if !errors.Is(err, errors.GraphCorruption) {
		t.Fatalf("expected GraphCorruption, got %v", err)
	}
	// The failed batch must not have been partially applied.
	if s.NumUnits() != 0 {
		t.Errorf("unit count after failed batch = %d, want 0", s.NumUnits())
	}
}

// module returns a shared module unit: no owning path, like the parser
// emits for imports.
func module(id string) model.StructuralUnit {
	return model.StructuralUnit{
		ID:          id,
		Name:        id,
		Kind:        model.KindModule,
		Language:    "javascript",
		ContentHash: "h-" + id,
	}
}

func TestSharedModuleSurvivesImporterReindex(t *testing.T) {
	s := NewStore()
	mod := module("m-lodash")
	for _, p := range []string{"a.js", "b.js"} {
		f := unit("f-"+p, p)
		batch := model.FileBatch{
			Path:  p,
			Units: []model.StructuralUnit{f, mod},
			Edges: []model.DependencyEdge{edge(f.ID, mod.ID, model.EdgeImports)},
		}
		if _, err := s.ApplyFileBatch(batch); err != nil {
			t.Fatalf("batch for %s: %v", p, err)
		}
	}

	// a.js drops the import; b.js still uses the module.
	removed, err := s.ApplyFileBatch(model.FileBatch{
		Path:  "a.js",
		Units: []model.StructuralUnit{unit("f-a.js", "a.js")},
	})
	if err != nil {
		t.Fatalf("re-applying a.js: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("removed = %v, want none while b.js still imports the module", removed)
	}
	if _, ok := s.Unit("m-lodash"); !ok {
		t.Fatal("shared module deleted while another file still imports it")
	}
	got, err := s.Neighbors("f-b.js", model.DirOut, 1)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if !reflect.DeepEqual(got, []Neighbor{{"m-lodash", 1}}) {
		t.Fatalf("b.js out-neighbors = %v, want the shared module", got)
	}

	// b.js drops it too: now nothing references the module and it goes.
	removed, err = s.ApplyFileBatch(model.FileBatch{
		Path:  "b.js",
		Units: []model.StructuralUnit{unit("f-b.js", "b.js")},
	})
	if err != nil {
		t.Fatalf("re-applying b.js: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{"m-lodash"}) {
		t.Fatalf("removed = %v, want [m-lodash]", removed)
	}
	if _, ok := s.Unit("m-lodash"); ok {
		t.Fatal("unreferenced module survived its last importer")
	}
	if err := s.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestRemoveFileDropsUnreferencedSharedModule(t *testing.T) {
	s := NewStore()
	f := unit("f-a.js", "a.js")
	mod := module("m-react")
	if _, err := s.ApplyFileBatch(model.FileBatch{
		Path:  "a.js",
		Units: []model.StructuralUnit{f, mod},
		Edges: []model.DependencyEdge{edge(f.ID, mod.ID, model.EdgeImports)},
	}); err != nil {
		t.Fatal(err)
	}

	removed := s.RemoveFile("a.js")
	if !reflect.DeepEqual(removed, []string{"f-a.js", "m-react"}) {
		t.Fatalf("removed = %v, want file unit and its orphaned module", removed)
	}
	if s.NumUnits() != 0 || s.NumEdges() != 0 {
		t.Fatalf("store not empty: %d units, %d edges", s.NumUnits(), s.NumEdges())
	}
}

func TestRemoveUnitCascadesEdges(t *testing.T) {
	s := NewStore()
	if err := s.UpsertUnits([]model.StructuralUnit{unit("a", "a.go"), unit("b", "b.go"), unit("c", "c.go")}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEdges([]model.DependencyEdge{
		edge("a", "b", model.EdgeCalls),
		edge("b", "c", model.EdgeCalls),
		edge("c", "a", model.EdgeCalls),
	}); err != nil {
		t.Fatal(err)
	}

	s.RemoveUnit("b")

	if s.NumEdges() != 1 {
		t.Fatalf("edge count after removal = %d, want 1", s.NumEdges())
	}
	if err := s.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity after cascade: %v", err)
	}
}

func TestNeighborsOrderingAndDepth(t *testing.T) {
	// a -> b -> c, a -> d
	s := NewStore()
	if err := s.UpsertUnits([]model.StructuralUnit{
		unit("a", "a.go"), unit("b", "b.go"), unit("c", "c.go"), unit("d", "d.go"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEdges([]model.DependencyEdge{
		edge("a", "b", model.EdgeCalls),
		edge("b", "c", model.EdgeCalls),
		edge("a", "d", model.EdgeCalls),
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		dir      model.Direction
		maxDepth int
		want     []Neighbor
	}{
		{"out depth 1", model.DirOut, 1, []Neighbor{{"b", 1}, {"d", 1}}},
		{"out depth 2", model.DirOut, 2, []Neighbor{{"b", 1}, {"d", 1}, {"c", 2}}},
		{"in from a", model.DirIn, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Neighbors("a", tt.dir, tt.maxDepth)
			if err != nil {
				t.Fatalf("Neighbors: %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Neighbors = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeighborsUnknownOrigin(t *testing.T) {
	s := NewStore()
	_, err := s.Neighbors("nope", model.DirOut, 2)
	if !errors.Is(err, errors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestExtractSubgraph(t *testing.T) {
	s := NewStore()
	if err := s.UpsertUnits([]model.StructuralUnit{
		unit("a", "a.go"), unit("b", "b.go"), unit("c", "c.go"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEdges([]model.DependencyEdge{
		edge("a", "b", model.EdgeCalls),
		edge("b", "c", model.EdgeCalls),
	}); err != nil {
		t.Fatal(err)
	}

	sub, err := s.Extract("a", model.DirOut, 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(sub.Units) != 2 {
		t.Errorf("subgraph units = %d, want 2 (origin + b)", len(sub.Units))
	}
	if len(sub.Edges) != 1 {
		t.Errorf("subgraph edges = %d, want 1", len(sub.Edges))
	}
	if sub.Distances["b"] != 1 {
		t.Errorf("distance to b = %d, want 1", sub.Distances["b"])
	}
}

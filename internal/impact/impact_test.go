package impact

import (
	"testing"

	"codescope/internal/errors"
	"codescope/internal/graph"
	"codescope/internal/logging"
	"codescope/internal/model"
	"codescope/internal/ranking"
	"codescope/internal/vecindex"
)

type fakeSource struct {
	g    *graph.Store
	info ranking.IndexInfo
	err  error
}

func (f *fakeSource) Indexes(string) (*graph.Store, vecindex.Index, ranking.IndexInfo, error) {
	if f.err != nil {
		return nil, nil, ranking.IndexInfo{}, f.err
	}
	return f.g, nil, f.info, nil
}

// chain fixture: d -> c -> b -> a, all in distinct files.
func chainSource(t *testing.T) *fakeSource {
	t.Helper()
	g := graph.NewStore()
	units := []model.StructuralUnit{
		{ID: "a", Path: "a.go", Name: "A", Kind: model.KindFunction, Language: "go", ContentHash: "h"},
		{ID: "b", Path: "b.go", Name: "B", Kind: model.KindFunction, Language: "go", ContentHash: "h"},
		{ID: "c", Path: "c.go", Name: "C", Kind: model.KindFunction, Language: "go", ContentHash: "h"},
		{ID: "d", Path: "d.go", Name: "D", Kind: model.KindFunction, Language: "go", ContentHash: "h"},
	}
	if err := g.UpsertUnits(units); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertEdges([]model.DependencyEdge{
		{From: "b", To: "a", Kind: model.EdgeCalls, Confidence: 1.0},
		{From: "c", To: "b", Kind: model.EdgeCalls, Confidence: 1.0},
		{From: "d", To: "c", Kind: model.EdgeCalls, Confidence: 1.0},
	}); err != nil {
		t.Fatal(err)
	}
	return &fakeSource{g: g, info: ranking.IndexInfo{Version: 1}}
}

func TestAnalyzeRiskBuckets(t *testing.T) {
	a := NewAnalyzer(chainSource(t), logging.Discard())

	report, err := a.Analyze("repo", []string{"a.go"}, 3)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.ChangedUnits != 1 {
		t.Fatalf("changed units = %d, want 1", report.ChangedUnits)
	}

	want := []struct {
		id   string
		dist int
		risk Risk
	}{
		{"b", 1, RiskHigh},
		{"c", 2, RiskMedium},
		{"d", 3, RiskLow},
	}
	if len(report.Impacted) != len(want) {
		t.Fatalf("impacted = %d units, want %d", len(report.Impacted), len(want))
	}
	for i, w := range want {
		got := report.Impacted[i]
		if got.UnitID != w.id || got.Distance != w.dist || got.Risk != w.risk {
			t.Errorf("impacted[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestAnalyzeDepthLimit(t *testing.T) {
	a := NewAnalyzer(chainSource(t), logging.Discard())
	report, err := a.Analyze("repo", []string{"a.go"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Impacted) != 1 || report.Impacted[0].UnitID != "b" {
		t.Fatalf("impacted = %v, want only b at depth 1", report.Impacted)
	}
}

func TestAnalyzeExcludesChangedUnits(t *testing.T) {
	a := NewAnalyzer(chainSource(t), logging.Discard())
	report, err := a.Analyze("repo", []string{"a.go", "b.go"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range report.Impacted {
		if u.UnitID == "a" || u.UnitID == "b" {
			t.Errorf("changed unit %s listed as impacted", u.UnitID)
		}
	}
	// b is changed, so c is now distance 1 from the changed set.
	if report.Impacted[0].UnitID != "c" || report.Impacted[0].Distance != 1 {
		t.Errorf("impacted[0] = %+v, want c at distance 1", report.Impacted[0])
	}
}

func TestAnalyzeValidation(t *testing.T) {
	a := NewAnalyzer(chainSource(t), logging.Discard())

	if _, err := a.Analyze("repo", nil, 3); !errors.Is(err, errors.InvalidArgument) {
		t.Errorf("empty changedFiles: expected InvalidArgument, got %v", err)
	}
	if _, err := a.Analyze("repo", []string{"ghost.go"}, 3); !errors.Is(err, errors.NotFound) {
		t.Errorf("unindexed file: expected NotFound, got %v", err)
	}
}

func TestAnalyzePropagatesStaleFlag(t *testing.T) {
	src := chainSource(t)
	src.info.Stale = true
	a := NewAnalyzer(src, logging.Discard())
	report, err := a.Analyze("repo", []string{"a.go"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !report.StaleIndex {
		t.Errorf("StaleIndex = false, want true")
	}
}

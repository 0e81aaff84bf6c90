package storage

import (
	"bytes"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"codescope/internal/logging"
	"codescope/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	row := RepositoryRow{
		ID:           "r:abc",
		Root:         "/src/app",
		Name:         "app",
		State:        "ready",
		IndexVersion: 4,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if err := db.SaveRepository(row); err != nil {
		t.Fatalf("SaveRepository: %v", err)
	}

	// Saving again with new state must update, not duplicate.
	row.State = "stale"
	if err := db.SaveRepository(row); err != nil {
		t.Fatal(err)
	}

	rows, err := db.LoadRepositories()
	if err != nil {
		t.Fatalf("LoadRepositories: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("repositories = %d, want 1", len(rows))
	}
	if !reflect.DeepEqual(rows[0], row) {
		t.Errorf("loaded = %+v, want %+v", rows[0], row)
	}
}

func TestReplaceFileData(t *testing.T) {
	db := openTestDB(t)
	batch := model.FileBatch{
		Path: "a.go",
		Units: []model.StructuralUnit{
			{ID: "f", Path: "a.go", Name: "a.go", Kind: model.KindFile, Language: "go", EndByte: 240, StartLine: 1, EndLine: 10, ContentHash: "h1"},
			{ID: "u1", Path: "a.go", Name: "Fn", Kind: model.KindFunction, Language: "go", StartByte: 42, EndByte: 180, StartLine: 3, EndLine: 6, ContentHash: "h2"},
		},
		Edges: []model.DependencyEdge{
			{From: "u1", To: "f", Kind: model.EdgeReferences, Confidence: 1.0},
		},
	}
	if err := db.ReplaceFileData("r1", batch, "filehash1"); err != nil {
		t.Fatalf("ReplaceFileData: %v", err)
	}

	loaded, err := db.LoadUnits("r1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, batch.Units) {
		t.Fatalf("loaded units = %+v, want the stored batch with byte spans intact", loaded)
	}

	// Replace with a different unit set; the old sub-unit must go away.
	batch.Units = batch.Units[:1]
	batch.Edges = nil
	if err := db.ReplaceFileData("r1", batch, "filehash2"); err != nil {
		t.Fatal(err)
	}

	units, err := db.LoadUnits("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].ID != "f" {
		t.Fatalf("units = %v, want only the file unit", units)
	}
	edges, err := db.LoadEdges("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 0 {
		t.Fatalf("edges = %v, want none", edges)
	}

	hashes, err := db.LoadFileHashes("r1")
	if err != nil {
		t.Fatal(err)
	}
	if hashes["a.go"] != "filehash2" {
		t.Errorf("file hash = %q, want filehash2", hashes["a.go"])
	}
}

func TestPruneDetachedUnits(t *testing.T) {
	db := openTestDB(t)
	// Shared module rows have no path; file replacement leaves them alone.
	mod := model.StructuralUnit{ID: "m", Name: "lodash", Kind: model.KindModule, Language: "javascript", ContentHash: "hm"}
	for _, p := range []string{"a.js", "b.js"} {
		f := model.StructuralUnit{ID: "f-" + p, Path: p, Name: p, Kind: model.KindFile, Language: "javascript", ContentHash: "h"}
		batch := model.FileBatch{
			Path:  p,
			Units: []model.StructuralUnit{f, mod},
			Edges: []model.DependencyEdge{{From: f.ID, To: "m", Kind: model.EdgeImports, Confidence: 1.0}},
		}
		if err := db.ReplaceFileData("r1", batch, "fh-"+p); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.SaveEmbedding("r1", model.EmbeddingRecord{UnitID: "m", ModelTag: "tag", ContentHash: "hm", Vector: []float32{1}}); err != nil {
		t.Fatal(err)
	}

	// a.js drops the import: the module is still referenced by b.js.
	if err := db.ReplaceFileData("r1", model.FileBatch{
		Path:  "a.js",
		Units: []model.StructuralUnit{{ID: "f-a.js", Path: "a.js", Name: "a.js", Kind: model.KindFile, Language: "javascript", ContentHash: "h2"}},
	}, "fh2"); err != nil {
		t.Fatal(err)
	}
	if err := db.PruneDetachedUnits("r1"); err != nil {
		t.Fatal(err)
	}
	units, err := db.LoadUnits("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 3 {
		t.Fatalf("units after partial drop = %v, want both files plus the module", units)
	}

	// b.js drops it too: now nothing points at the module row.
	if err := db.ReplaceFileData("r1", model.FileBatch{
		Path:  "b.js",
		Units: []model.StructuralUnit{{ID: "f-b.js", Path: "b.js", Name: "b.js", Kind: model.KindFile, Language: "javascript", ContentHash: "h3"}},
	}, "fh3"); err != nil {
		t.Fatal(err)
	}
	if err := db.PruneDetachedUnits("r1"); err != nil {
		t.Fatal(err)
	}
	units, err = db.LoadUnits("r1")
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range units {
		if u.ID == "m" {
			t.Fatal("detached module row survived the prune")
		}
	}
	recs, err := db.LoadEmbeddings("r1")
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if rec.UnitID == "m" {
			t.Fatal("embedding of pruned module survived")
		}
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	db := openTestDB(t)
	rec := model.EmbeddingRecord{
		UnitID:      "u1",
		Vector:      []float32{0.25, -1.5, 3},
		ModelTag:    "m",
		ContentHash: "h",
	}
	if err := db.SaveEmbedding("r1", rec); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}
	got, err := db.LoadEmbeddings("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], rec) {
		t.Fatalf("loaded = %v, want %v", got, rec)
	}
}

func TestDeleteRepositoryClearsData(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	if err := db.SaveRepository(RepositoryRow{ID: "r1", Root: "/x", Name: "x", State: "ready", RegisteredAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	batch := model.FileBatch{
		Path:  "a.go",
		Units: []model.StructuralUnit{{ID: "f", Path: "a.go", Kind: model.KindFile, Language: "go", ContentHash: "h"}},
	}
	if err := db.ReplaceFileData("r1", batch, "fh"); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteRepository("r1"); err != nil {
		t.Fatalf("DeleteRepository: %v", err)
	}
	rows, err := db.LoadRepositories()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("repositories after delete = %d, want 0", len(rows))
	}
	units, err := db.LoadUnits("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Errorf("units after delete = %d, want 0", len(units))
	}
}

func TestSessionPersistence(t *testing.T) {
	db := openTestDB(t)
	payload := []byte(`{"id":"s1"}`)
	if err := db.SaveSession("s1", "r1", time.Now(), payload); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := db.LoadSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}

	if _, err := db.LoadSession("missing"); err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}

	n, err := db.DeleteSessionsBefore(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
}

func TestSnapshotExportReadBack(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	if err := db.SaveRepository(RepositoryRow{ID: "r1", Root: "/x", Name: "x", State: "ready", IndexVersion: 2, RegisteredAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	batch := model.FileBatch{
		Path: "a.go",
		Units: []model.StructuralUnit{
			{ID: "f", Path: "a.go", Name: "a.go", Kind: model.KindFile, Language: "go", ContentHash: "h"},
		},
	}
	if err := db.ReplaceFileData("r1", batch, "fh"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := db.ExportSnapshot("r1", &buf); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}

	snap, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.Repository.ID != "r1" || snap.Repository.IndexVersion != 2 {
		t.Errorf("snapshot repository = %+v", snap.Repository)
	}
	if len(snap.Units) != 1 || snap.Units[0].ID != "f" {
		t.Errorf("snapshot units = %v", snap.Units)
	}
	if snap.FileHashes["a.go"] != "fh" {
		t.Errorf("snapshot file hashes = %v", snap.FileHashes)
	}
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e7}
	got := decodeVector(encodeVector(in))
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %v, want %v", got, in)
	}
}

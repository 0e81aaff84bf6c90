package coordinator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManifestRoundTrip(t *testing.T) {
	root := t.TempDir()
	in := &Manifest{
		Name:      "payments",
		Ignore:    []string{"generated/", "*.pb.go"},
		SCIPIndex: "index.scip",
	}
	if err := WriteManifest(root, in); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	out, err := LoadManifest(root)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if out == nil {
		t.Fatal("manifest not found after write")
	}
	if out.Name != in.Name || out.SCIPIndex != in.SCIPIndex {
		t.Errorf("round trip changed fields: %+v", out)
	}
	if len(out.Ignore) != 2 || out.Ignore[0] != "generated/" {
		t.Errorf("ignore = %v", out.Ignore)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	if err != nil {
		t.Fatalf("missing manifest is not an error, got %v", err)
	}
	if m != nil {
		t.Errorf("manifest = %+v, want nil", m)
	}
}

func TestLoadManifestMalformed(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".codescope")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "repo.toml"), []byte("name = [broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(root); err == nil {
		t.Error("expected error for malformed manifest")
	}
}

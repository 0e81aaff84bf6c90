package coordinator

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest is the optional per-repository .codescope/repo.toml file. It
// pins a display name and indexing overrides to the repository itself so
// clones on other machines index the same way.
type Manifest struct {
	Name      string   `toml:"name"`
	Ignore    []string `toml:"ignore"`
	SCIPIndex string   `toml:"scip_index"`
}

func manifestPath(root string) string {
	return filepath.Join(root, ".codescope", "repo.toml")
}

// LoadManifest reads the repository manifest if one exists. A missing
// manifest is not an error.
func LoadManifest(root string) (*Manifest, error) {
	path := manifestPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteManifest writes the manifest, creating .codescope if needed.
func WriteManifest(root string, m *Manifest) error {
	dir := filepath.Dir(manifestPath(root))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.Create(manifestPath(root))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(m)
}

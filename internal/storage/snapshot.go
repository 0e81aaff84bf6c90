package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"codescope/internal/model"
)

// Snapshot is a portable export of one repository's index: the graph
// and file hashes, without embedding vectors (those are rebuilt from
// the configured provider on import).
type Snapshot struct {
	FormatVersion int                    `json:"formatVersion"`
	ExportedAt    time.Time              `json:"exportedAt"`
	Repository    RepositoryRow          `json:"repository"`
	Units         []model.StructuralUnit `json:"units"`
	Edges         []model.DependencyEdge `json:"edges"`
	FileHashes    map[string]string      `json:"fileHashes"`
}

const snapshotFormatVersion = 1

// ExportSnapshot writes a zstd-compressed JSON snapshot of one
// repository's index to w.
func (db *DB) ExportSnapshot(repoID string, w io.Writer) error {
	repos, err := db.LoadRepositories()
	if err != nil {
		return err
	}
	var repo *RepositoryRow
	for i := range repos {
		if repos[i].ID == repoID {
			repo = &repos[i]
			break
		}
	}
	if repo == nil {
		return fmt.Errorf("repository %s not found", repoID)
	}

	units, err := db.LoadUnits(repoID)
	if err != nil {
		return err
	}
	edges, err := db.LoadEdges(repoID)
	if err != nil {
		return err
	}
	hashes, err := db.LoadFileHashes(repoID)
	if err != nil {
		return err
	}

	snap := Snapshot{
		FormatVersion: snapshotFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Repository:    *repo,
		Units:         units,
		Edges:         edges,
		FileHashes:    hashes,
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	enc := json.NewEncoder(zw)
	if err := enc.Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return zw.Close()
}

// ReadSnapshot decodes a zstd-compressed snapshot from r.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.FormatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", snap.FormatVersion)
	}
	return &snap, nil
}

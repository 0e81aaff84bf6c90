package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"codescope/internal/model"
)

// RepositoryRow mirrors a row of the repositories table.
type RepositoryRow struct {
	ID           string
	Root         string
	Name         string
	State        string
	IndexVersion int64
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// SaveRepository inserts or updates a repository row.
func (db *DB) SaveRepository(row RepositoryRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO repositories (id, root, name, state, index_version, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root = excluded.root,
			name = excluded.name,
			state = excluded.state,
			index_version = excluded.index_version,
			updated_at = excluded.updated_at`,
		row.ID, row.Root, row.Name, row.State, row.IndexVersion,
		row.RegisteredAt.Unix(), row.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save repository %s: %w", row.ID, err)
	}
	return nil
}

// LoadRepositories returns all registered repositories.
func (db *DB) LoadRepositories() ([]RepositoryRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, root, name, state, index_version, registered_at, updated_at
		FROM repositories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load repositories: %w", err)
	}
	defer rows.Close()

	var out []RepositoryRow
	for rows.Next() {
		var r RepositoryRow
		var registered, updated int64
		if err := rows.Scan(&r.ID, &r.Root, &r.Name, &r.State, &r.IndexVersion, &registered, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan repository: %w", err)
		}
		r.RegisteredAt = time.Unix(registered, 0).UTC()
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRepository removes a repository and all of its indexed data.
func (db *DB) DeleteRepository(repoID string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"units", "edges", "embeddings", "file_hashes"} {
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE repo_id = ?", table), repoID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if _, err := tx.Exec("DELETE FROM repositories WHERE id = ?", repoID); err != nil {
			return fmt.Errorf("failed to delete repository: %w", err)
		}
		return nil
	})
}

// ReplaceFileData atomically replaces the units and outgoing edges for a
// single file, and records the file's content hash. Edges whose source
// unit belongs to the file are replaced; edges pointing at the file's
// units from elsewhere are left alone.
func (db *DB) ReplaceFileData(repoID string, batch model.FileBatch, contentHash string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM edges WHERE repo_id = ? AND from_id IN
				(SELECT id FROM units WHERE repo_id = ? AND path = ?)`,
			repoID, repoID, batch.Path); err != nil {
			return fmt.Errorf("failed to clear file edges: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM units WHERE repo_id = ? AND path = ?`,
			repoID, batch.Path); err != nil {
			return fmt.Errorf("failed to clear file units: %w", err)
		}
		for _, u := range batch.Units {
			if _, err := tx.Exec(`
				INSERT INTO units (repo_id, id, path, name, kind, language, start_byte, end_byte, start_line, end_line, content_hash)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(repo_id, id) DO UPDATE SET
					path = excluded.path,
					name = excluded.name,
					kind = excluded.kind,
					language = excluded.language,
					start_byte = excluded.start_byte,
					end_byte = excluded.end_byte,
					start_line = excluded.start_line,
					end_line = excluded.end_line,
					content_hash = excluded.content_hash`,
				repoID, u.ID, u.Path, u.Name, string(u.Kind), u.Language,
				u.StartByte, u.EndByte, u.StartLine, u.EndLine, u.ContentHash); err != nil {
				return fmt.Errorf("failed to insert unit %s: %w", u.ID, err)
			}
		}
		for _, e := range batch.Edges {
			if err := insertEdge(tx, repoID, e); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO file_hashes (repo_id, path, content_hash)
			VALUES (?, ?, ?)
			ON CONFLICT(repo_id, path) DO UPDATE SET content_hash = excluded.content_hash`,
			repoID, batch.Path, contentHash); err != nil {
			return fmt.Errorf("failed to record file hash: %w", err)
		}
		return nil
	})
}

// UpsertEdges inserts or updates edges outside a file replacement,
// used by the module linker and SCIP import.
func (db *DB) UpsertEdges(repoID string, edges []model.DependencyEdge) error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, e := range edges {
			if err := insertEdge(tx, repoID, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEdge(tx *sql.Tx, repoID string, e model.DependencyEdge) error {
	_, err := tx.Exec(`
		INSERT INTO edges (repo_id, from_id, to_id, kind, confidence)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, from_id, to_id, kind) DO UPDATE SET
			confidence = excluded.confidence`,
		repoID, e.From, e.To, string(e.Kind), e.Confidence)
	if err != nil {
		return fmt.Errorf("failed to insert edge %s->%s: %w", e.From, e.To, err)
	}
	return nil
}

// DeleteFileData removes the units, outgoing edges, and hash for a file.
func (db *DB) DeleteFileData(repoID, path string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM edges WHERE repo_id = ? AND from_id IN
				(SELECT id FROM units WHERE repo_id = ? AND path = ?)`,
			repoID, repoID, path); err != nil {
			return fmt.Errorf("failed to clear file edges: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM units WHERE repo_id = ? AND path = ?`,
			repoID, path); err != nil {
			return fmt.Errorf("failed to clear file units: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM file_hashes WHERE repo_id = ? AND path = ?`,
			repoID, path); err != nil {
			return fmt.Errorf("failed to clear file hash: %w", err)
		}
		return nil
	})
}

// PruneDetachedUnits deletes shared (path-less) units that no edge points
// at any more, along with their outgoing edges and embeddings. File
// replacement never touches these rows, so the indexer reconciles them
// once per completed pass.
func (db *DB) PruneDetachedUnits(repoID string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id FROM units WHERE repo_id = ? AND path = ''
				AND id NOT IN (SELECT to_id FROM edges WHERE repo_id = ?)`,
			repoID, repoID)
		if err != nil {
			return fmt.Errorf("failed to find detached units: %w", err)
		}
		var detached []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan detached unit: %w", err)
			}
			detached = append(detached, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range detached {
			if _, err := tx.Exec(`DELETE FROM edges WHERE repo_id = ? AND from_id = ?`, repoID, id); err != nil {
				return fmt.Errorf("failed to prune edges of %s: %w", id, err)
			}
			if _, err := tx.Exec(`DELETE FROM embeddings WHERE repo_id = ? AND unit_id = ?`, repoID, id); err != nil {
				return fmt.Errorf("failed to prune embeddings of %s: %w", id, err)
			}
			if _, err := tx.Exec(`DELETE FROM units WHERE repo_id = ? AND id = ?`, repoID, id); err != nil {
				return fmt.Errorf("failed to prune unit %s: %w", id, err)
			}
		}
		return nil
	})
}

// SaveEmbedding stores one embedding record.
func (db *DB) SaveEmbedding(repoID string, rec model.EmbeddingRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO embeddings (repo_id, unit_id, model_tag, content_hash, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, unit_id, model_tag) DO UPDATE SET
			content_hash = excluded.content_hash,
			vector = excluded.vector`,
		repoID, rec.UnitID, rec.ModelTag, rec.ContentHash, encodeVector(rec.Vector))
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", rec.UnitID, err)
	}
	return nil
}

// LoadUnits returns all units of a repository, ordered by id.
func (db *DB) LoadUnits(repoID string) ([]model.StructuralUnit, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, name, kind, language, start_byte, end_byte, start_line, end_line, content_hash
		FROM units WHERE repo_id = ? ORDER BY id`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	defer rows.Close()

	var out []model.StructuralUnit
	for rows.Next() {
		var u model.StructuralUnit
		var kind string
		if err := rows.Scan(&u.ID, &u.Path, &u.Name, &kind, &u.Language,
			&u.StartByte, &u.EndByte, &u.StartLine, &u.EndLine, &u.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.Kind = model.UnitKind(kind)
		out = append(out, u)
	}
	return out, rows.Err()
}

// LoadEdges returns all edges of a repository.
func (db *DB) LoadEdges(repoID string) ([]model.DependencyEdge, error) {
	rows, err := db.conn.Query(`
		SELECT from_id, to_id, kind, confidence
		FROM edges WHERE repo_id = ? ORDER BY from_id, to_id, kind`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer rows.Close()

	var out []model.DependencyEdge
	for rows.Next() {
		var e model.DependencyEdge
		var kind string
		if err := rows.Scan(&e.From, &e.To, &kind, &e.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Kind = model.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LoadEmbeddings returns all embedding records of a repository.
func (db *DB) LoadEmbeddings(repoID string) ([]model.EmbeddingRecord, error) {
	rows, err := db.conn.Query(`
		SELECT unit_id, model_tag, content_hash, vector
		FROM embeddings WHERE repo_id = ? ORDER BY unit_id, model_tag`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	var out []model.EmbeddingRecord
	for rows.Next() {
		var rec model.EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&rec.UnitID, &rec.ModelTag, &rec.ContentHash, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		rec.Vector = decodeVector(blob)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadFileHashes returns path -> content hash for a repository.
func (db *DB) LoadFileHashes(repoID string) (map[string]string, error) {
	rows, err := db.conn.Query(`
		SELECT path, content_hash FROM file_hashes WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan file hash: %w", err)
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// Vectors are stored as little-endian float32 sequences.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

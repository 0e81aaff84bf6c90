package storage

import (
	"database/sql"
	"fmt"
	"strconv"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS repositories (
    id             TEXT PRIMARY KEY,
    root           TEXT NOT NULL,
    name           TEXT NOT NULL,
    state          TEXT NOT NULL,
    index_version  INTEGER NOT NULL DEFAULT 0,
    registered_at  INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS units (
    repo_id       TEXT NOT NULL,
    id            TEXT NOT NULL,
    path          TEXT NOT NULL,
    name          TEXT NOT NULL,
    kind          TEXT NOT NULL,
    language      TEXT NOT NULL,
    start_byte    INTEGER NOT NULL DEFAULT 0,
    end_byte      INTEGER NOT NULL DEFAULT 0,
    start_line    INTEGER NOT NULL,
    end_line      INTEGER NOT NULL,
    content_hash  TEXT NOT NULL,
    PRIMARY KEY (repo_id, id)
);
CREATE INDEX IF NOT EXISTS idx_units_path ON units(repo_id, path);

CREATE TABLE IF NOT EXISTS edges (
    repo_id     TEXT NOT NULL,
    from_id     TEXT NOT NULL,
    to_id       TEXT NOT NULL,
    kind        TEXT NOT NULL,
    confidence  REAL NOT NULL,
    PRIMARY KEY (repo_id, from_id, to_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(repo_id, to_id);

CREATE TABLE IF NOT EXISTS embeddings (
    repo_id       TEXT NOT NULL,
    unit_id       TEXT NOT NULL,
    model_tag     TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    vector        BLOB NOT NULL,
    PRIMARY KEY (repo_id, unit_id, model_tag)
);

CREATE TABLE IF NOT EXISTS file_hashes (
    repo_id       TEXT NOT NULL,
    path          TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    PRIMARY KEY (repo_id, path)
);

CREATE TABLE IF NOT EXISTS schema_meta (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
`

const schemaVersion = "2"

// migrations upgrade a database created at an older schema version. Keyed
// by the version the statements upgrade FROM.
var migrations = map[string][]string{
	"1": {
		`ALTER TABLE units ADD COLUMN start_byte INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE units ADD COLUMN end_byte INTEGER NOT NULL DEFAULT 0`,
	},
}

func (db *DB) initializeSchema() error {
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := db.initSessionsTable(); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	var current string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current != "" {
		for current != schemaVersion {
			stmts, ok := migrations[current]
			if !ok {
				return fmt.Errorf("no migration path from schema version %s", current)
			}
			for _, stmt := range stmts {
				if _, err := db.conn.Exec(stmt); err != nil {
					return fmt.Errorf("failed to migrate from version %s: %w", current, err)
				}
			}
			next, err := strconv.Atoi(current)
			if err != nil {
				return fmt.Errorf("bad schema version %q: %w", current, err)
			}
			current = strconv.Itoa(next + 1)
		}
	}

	_, err = db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, schemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

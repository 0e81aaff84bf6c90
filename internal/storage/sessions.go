package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Sessions are cached in memory by the ranking engine and written
// through here so feedback and refinement work across process
// restarts. The payload is the engine's own JSON encoding.

func (db *DB) initSessionsTable() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT PRIMARY KEY,
			repo_id      TEXT NOT NULL,
			last_active  INTEGER NOT NULL,
			payload      BLOB NOT NULL
		)`)
	return err
}

// SaveSession inserts or updates a persisted session.
func (db *DB) SaveSession(id, repoID string, lastActive time.Time, payload []byte) error {
	_, err := db.conn.Exec(`
		INSERT INTO sessions (id, repo_id, last_active, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_active = excluded.last_active,
			payload = excluded.payload`,
		id, repoID, lastActive.Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// LoadSession returns the persisted payload for a session, or
// sql.ErrNoRows when it does not exist.
func (db *DB) LoadSession(id string) ([]byte, error) {
	var payload []byte
	err := db.conn.QueryRow(`SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return payload, nil
}

// DeleteSessionsBefore removes sessions idle since before cutoff.
func (db *DB) DeleteSessionsBefore(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM sessions WHERE last_active < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return res.RowsAffected()
}

package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NodeRow represents a row in the nodes table.
type NodeRow struct {
	ID        string
	ParentID  string
	Path      string
	Title     string
	After     string
	Position  int
	Checksum  string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertNode inserts or replaces a node and its FTS entry within a transaction.
func (db *DB) UpsertNode(n NodeRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO nodes (id, parent_id, path, title, after_id, position, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id  = excluded.parent_id,
			path       = excluded.path,
			title      = excluded.title,
			after_id   = excluded.after_id,
			position   = excluded.position,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, n.ID, n.ParentID, n.Path, n.Title, n.After, n.Position, n.Checksum, body, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert node: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.ID, n.Title, body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteNode removes a node and its FTS entry.
func (db *DB) DeleteNode(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete node: %w", err)
	}
	return tx.Commit()
}

// GetNode returns the indexed row for id, or nil if it is not indexed.
func (db *DB) GetNode(id string) (*NodeRow, error) {
	var r NodeRow
	err := db.conn.QueryRow(`
		SELECT id, parent_id, path, title, after_id, position, checksum, updated_at
		FROM nodes WHERE id = ?
	`, id).Scan(&r.ID, &r.ParentID, &r.Path, &r.Title, &r.After, &r.Position, &r.Checksum, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get node: %w", err)
	}
	return &r, nil
}

// Children returns the indexed children of parentID ("" for roots) in sibling order.
func (db *DB) Children(parentID string) ([]NodeRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, parent_id, path, title, after_id, position, checksum, updated_at
		FROM nodes WHERE parent_id = ?
		ORDER BY position
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("index: children: %w", err)
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		var r NodeRow
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Path, &r.Title, &r.After, &r.Position, &r.Checksum, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllChecksums returns id -> checksum for every indexed node.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Count returns the number of indexed nodes.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

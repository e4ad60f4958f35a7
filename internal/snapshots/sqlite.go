package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/reconcile"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	document   TEXT PRIMARY KEY,
	keys       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
)`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the snapshot database at path. Parent
// directories are created as needed; ":memory:" opens a private in-memory
// database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), constants.SecureDirPermissions); err != nil {
			return nil, errors.WrapIO("mkdir", filepath.Dir(path), err)
		}
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, constants.SQLiteBusyTimeout)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapResource("create", "snapshot schema", path, err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, doc string) (*reconcile.Snapshot, error) {
	var (
		raw       string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT keys, updated_at FROM snapshots WHERE document = ?`, doc,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapResource("read", "snapshot", doc, err)
	}

	snap := &reconcile.Snapshot{UpdatedAt: updatedAt.UTC()}
	if err := json.Unmarshal([]byte(raw), &snap.Keys); err != nil {
		return nil, errors.WrapParse("json", doc, err)
	}
	return snap, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, doc string, snap reconcile.Snapshot) error {
	keys := snap.Keys
	if keys == nil {
		keys = []string{}
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return errors.WrapParse("json", doc, err)
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (document, keys, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(document) DO UPDATE SET
			keys = excluded.keys,
			updated_at = excluded.updated_at
	`, doc, string(raw), snap.UpdatedAt.UTC())
	return errors.WrapResource("update", "snapshot", doc, err)
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, doc string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE document = ?`, doc)
	return errors.WrapResource("delete", "snapshot", doc, err)
}

// Rename implements Store.
func (s *SQLite) Rename(ctx context.Context, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapResource("rename", "snapshot", from, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE document = ? AND EXISTS (SELECT 1 FROM snapshots WHERE document = ?)`,
		to, from); err != nil {
		return errors.WrapResource("rename", "snapshot", from, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET document = ? WHERE document = ?`, to, from); err != nil {
		return errors.WrapResource("rename", "snapshot", from, err)
	}
	return errors.WrapResource("rename", "snapshot", from, tx.Commit())
}

// Documents implements Store.
func (s *SQLite) Documents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM snapshots ORDER BY document`)
	if err != nil {
		return nil, errors.WrapResource("list", "snapshot", "", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.WrapResource("list", "snapshot", "", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("list", "snapshot", "", err)
	}
	return docs, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/program-extract/internal/model"
)

// SQLiteStore implements learning.Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS learning_state (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the learning_state table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every section row. An empty table yields an empty snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (*model.LearningSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, data, revision FROM learning_state`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load")
	}
	defer rows.Close() //nolint:errcheck

	snap := model.NewLearningSnapshot()
	for rows.Next() {
		var (
			name     string
			data     string
			revision int64
		)
		if err := rows.Scan(&name, &data, &revision); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan learning_state")
		}
		if err := decodeRow(snap, name, []byte(data), revision); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate learning_state")
	}
	snap.Normalize()
	return snap, nil
}

// Save rewrites every section in one transaction and bumps the revision.
func (s *SQLiteStore) Save(ctx context.Context, snap *model.LearningSnapshot) (model.SaveStatus, error) {
	rows, err := encodeSnapshot(snap)
	if err != nil {
		return model.SaveStatus{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.SaveStatus{}, eris.Wrap(err, "sqlite: begin save")
	}
	defer tx.Rollback() //nolint:errcheck

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM learning_state WHERE name = ?`, metaRow).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.SaveStatus{}, eris.Wrap(err, "sqlite: read revision")
	}

	status := model.SaveStatus{Revision: current + 1, Overwrote: current > snap.Revision}
	now := time.Now().UTC()
	for _, r := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO learning_state (name, data, revision, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET data = excluded.data, revision = excluded.revision, updated_at = excluded.updated_at`,
			r.name, string(r.data), status.Revision, now,
		)
		if err != nil {
			return model.SaveStatus{}, eris.Wrapf(err, "sqlite: save %s", r.name)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.SaveStatus{}, eris.Wrap(err, "sqlite: commit save")
	}
	return status, nil
}

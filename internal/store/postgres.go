package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/program-extract/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements learning.Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS learning_state (
	name       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	revision   BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the learning_state table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Load reads every section row. An empty table yields an empty snapshot.
func (s *PostgresStore) Load(ctx context.Context) (*model.LearningSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, data, revision FROM learning_state`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load")
	}
	defer rows.Close()

	snap := model.NewLearningSnapshot()
	for rows.Next() {
		var (
			name     string
			data     []byte
			revision int64
		)
		if err := rows.Scan(&name, &data, &revision); err != nil {
			return nil, eris.Wrap(err, "postgres: scan learning_state")
		}
		if err := decodeRow(snap, name, data, revision); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate learning_state")
	}
	snap.Normalize()
	return snap, nil
}

// Save rewrites every section in one transaction. The meta row is locked
// first so concurrent writers serialize on the revision.
func (s *PostgresStore) Save(ctx context.Context, snap *model.LearningSnapshot) (model.SaveStatus, error) {
	rows, err := encodeSnapshot(snap)
	if err != nil {
		return model.SaveStatus{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.SaveStatus{}, eris.Wrap(err, "postgres: begin save")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	err = tx.QueryRow(ctx, `SELECT revision FROM learning_state WHERE name = $1 FOR UPDATE`, metaRow).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.SaveStatus{}, eris.Wrap(err, "postgres: read revision")
	}

	status := model.SaveStatus{Revision: current + 1, Overwrote: current > snap.Revision}
	now := time.Now().UTC()
	for _, r := range rows {
		_, err := tx.Exec(ctx,
			`INSERT INTO learning_state (name, data, revision, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at`,
			r.name, r.data, status.Revision, now,
		)
		if err != nil {
			return model.SaveStatus{}, eris.Wrapf(err, "postgres: save %s", r.name)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.SaveStatus{}, eris.Wrap(err, "postgres: commit save")
	}
	return status, nil
}

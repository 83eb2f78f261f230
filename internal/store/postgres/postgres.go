// Package postgres stores datasets in PostgreSQL.
//
// Each dataset is a row in tabsync_datasets holding its ordered header, and
// its rows live in tabsync_rows as JSONB objects ordered by position. A write
// replaces every row of the dataset inside one transaction, so readers never
// observe a half-written dataset.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// Schema creates the tables used by Store. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS tabsync_datasets (
	name       TEXT PRIMARY KEY,
	columns    JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tabsync_rows (
	dataset  TEXT   NOT NULL REFERENCES tabsync_datasets(name) ON DELETE CASCADE,
	position BIGINT NOT NULL,
	data     JSONB  NOT NULL,
	PRIMARY KEY (dataset, position)
);
`

// PoolConfig tunes the connection pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a core.TabularStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for url, verifies it and applies Schema.
func Connect(ctx context.Context, url string, pc PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = int32(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the dataset tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ReadDataset returns the dataset, or an empty one if it was never written.
func (s *Store) ReadDataset(ctx context.Context, name string) (core.Dataset, error) {
	var rawColumns []byte
	err := s.pool.QueryRow(ctx,
		`SELECT columns FROM tabsync_datasets WHERE name = $1`, name,
	).Scan(&rawColumns)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NewDataset(name, nil, nil), nil
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("read dataset %q: %w", name, err)
	}

	var columns []string
	if err := json.Unmarshal(rawColumns, &columns); err != nil {
		return core.Dataset{}, fmt.Errorf("decode columns of %q: %w", name, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM tabsync_rows WHERE dataset = $1 ORDER BY position`, name)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("read rows of %q: %w", name, err)
	}

	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (core.Row, error) {
		var data []byte
		if err := r.Scan(&data); err != nil {
			return core.Row{}, err
		}
		var row core.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return core.Row{}, err
		}
		return row, nil
	})
	if err != nil {
		return core.Dataset{}, fmt.Errorf("scan rows of %q: %w", name, err)
	}

	return core.NewDataset(name, columns, out), nil
}

// WriteDataset replaces the dataset's header and rows.
func (s *Store) WriteDataset(ctx context.Context, name string, ds core.Dataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertDataset(ctx, tx, name, ds.Columns, true); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tabsync_rows WHERE dataset = $1`, name); err != nil {
		return fmt.Errorf("clear rows of %q: %w", name, err)
	}
	if err := copyRows(ctx, tx, name, 0, ds.Rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendRows adds rows after the dataset's last row, creating the dataset
// with columns as its header on first use.
func (s *Store) AppendRows(ctx context.Context, name string, columns []string, rows []core.Row) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertDataset(ctx, tx, name, columns, false); err != nil {
		return err
	}

	// Lock the dataset so concurrent appends get distinct positions.
	var next int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE((SELECT MAX(position) + 1 FROM tabsync_rows WHERE dataset = $1), 0)
		FROM tabsync_datasets WHERE name = $1 FOR UPDATE`, name,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next position of %q: %w", name, err)
	}

	if err := copyRows(ctx, tx, name, next, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Datasets lists the names of all stored datasets.
func (s *Store) Datasets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM tabsync_datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func upsertDataset(ctx context.Context, tx pgx.Tx, name string, columns []string, replace bool) error {
	if columns == nil {
		columns = []string{}
	}
	raw, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("encode columns of %q: %w", name, err)
	}

	query := `INSERT INTO tabsync_datasets (name, columns) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET updated_at = now()`
	if replace {
		query = `INSERT INTO tabsync_datasets (name, columns) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET columns = EXCLUDED.columns, updated_at = now()`
	}

	if _, err := tx.Exec(ctx, query, name, raw); err != nil {
		return fmt.Errorf("upsert dataset %q: %w", name, err)
	}
	return nil
}

func copyRows(ctx context.Context, tx pgx.Tx, name string, start int64, rows []core.Row) error {
	if len(rows) == 0 {
		return nil
	}

	src := make([][]any, 0, len(rows))
	for i, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode row %d of %q: %w", i, name, err)
		}
		src = append(src, []any{name, start + int64(i), data})
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"tabsync_rows"},
		[]string{"dataset", "position", "data"},
		pgx.CopyFromRows(src),
	)
	if err != nil {
		return fmt.Errorf("copy rows of %q: %w", name, err)
	}
	return nil
}

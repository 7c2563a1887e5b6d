// Package store is the Postgres persistence gateway for solicitations and
// their attachments.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pool is the query surface the store needs. Satisfied by *pgxpool.Pool,
// pgx.Tx, and pgxmock pools.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Store implements the persistence gateway on Postgres.
type Store struct {
	db      Pool
	closeFn func()
	log     *zap.Logger

	// Notice-type ids are memoized for the lifetime of this Store. A Store
	// is one ingestion session; create a fresh one per run rather than
	// holding a long-lived instance across sessions.
	mu      sync.Mutex
	typeIDs map[string]int
}

// NewPostgres creates a Store backed by a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return newStore(pool, pool.Close), nil
}

// NewWithPool creates a Store over an existing pool. Used by tests.
func NewWithPool(db Pool) *Store {
	return newStore(db, nil)
}

func newStore(db Pool, closeFn func()) *Store {
	return &Store{
		db:      db,
		closeFn: closeFn,
		log:     zap.L().With(zap.String("component", "store")),
		typeIDs: make(map[string]int),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "store: ping")
}

func (s *Store) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

// WithTx runs fn against a transaction-scoped Store. The transaction commits
// when fn returns nil and rolls back otherwise. The notice-type cache is not
// shared into the transaction scope; an aborted insert must not leave a
// phantom id memoized.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin tx")
	}

	txStore := newStore(tx, nil)

	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !eris.Is(rbErr, pgx.ErrTxClosed) {
			return eris.Wrapf(err, "store: rollback also failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "store: commit tx")
}

const migration = `
CREATE TABLE IF NOT EXISTS notice_types (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agencies (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL UNIQUE,
	aliases    JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS solicitations (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	sol_num             TEXT NOT NULL,
	notice_type_id      INTEGER REFERENCES notice_types(id),
	active              BOOLEAN NOT NULL DEFAULT TRUE,
	na_flag             BOOLEAN NOT NULL DEFAULT FALSE,
	compliant           INTEGER,
	review_rec          TEXT,
	agency              TEXT,
	agency_id           TEXT REFERENCES agencies(id),
	office              TEXT,
	title               TEXT,
	classification_code TEXT,
	naics_code          TEXT,
	set_aside           TEXT,
	url                 TEXT,
	emails              JSONB NOT NULL DEFAULT '[]',
	description         TEXT,
	date                TIMESTAMPTZ,
	action_date         TIMESTAMPTZ,
	action_status       TEXT,
	predictions         JSONB NOT NULL DEFAULT '{}',
	history             JSONB NOT NULL DEFAULT '[]',
	action              JSONB NOT NULL DEFAULT '[]',
	parse_status        JSONB NOT NULL DEFAULT '[]',
	search_text         TEXT,
	num_docs            INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_solicitations_sol_num ON solicitations (LOWER(sol_num));
CREATE INDEX IF NOT EXISTS idx_solicitations_active ON solicitations (active);
CREATE INDEX IF NOT EXISTS idx_solicitations_updated_at ON solicitations (updated_at);

CREATE TABLE IF NOT EXISTS attachments (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	solicitation_id   TEXT NOT NULL REFERENCES solicitations(id) ON DELETE CASCADE,
	filename          TEXT NOT NULL,
	url               TEXT,
	text              TEXT,
	machine_readable  BOOLEAN NOT NULL DEFAULT FALSE,
	prediction        INTEGER,
	decision_boundary DOUBLE PRECISION,
	validation        INTEGER,
	trained           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (solicitation_id, filename)
);

CREATE INDEX IF NOT EXISTS idx_attachments_solicitation_id ON attachments (solicitation_id);
CREATE INDEX IF NOT EXISTS idx_attachments_validation ON attachments (validation) WHERE validation IS NOT NULL;

CREATE TABLE IF NOT EXISTS predictions (
	sol_num    TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	review_rec TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_log (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	notices     INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	detail      JSONB
);
`

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transaction-local settings read by the row-level security policies in
// schema.go.
const (
	ownerSetting      = "docwatch.owner_id"
	privilegedSetting = "docwatch.privileged"
)

// DB owns the connection pool. Every transaction it opens runs in a
// row-level security scope: a single owner, or the privileged scope reserved
// for the poller.
type DB struct {
	pool *pgxpool.Pool
}

type Config struct {
	DSN      string
	MaxConns int32 // default 10
	MinConns int32 // default 2
}

func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = orDefault(cfg.MaxConns, 10)
	poolCfg.MinConns = orDefault(cfg.MinConns, 2)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func orDefault(v, def int32) int32 {
	if v > 0 {
		return v
	}
	return def
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Pool exposes the pool for session-level work such as advisory locks that
// must outlive a single transaction.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// WithOwnerTx runs fn in a transaction that can only see rows of ownerID.
func (db *DB) WithOwnerTx(ctx context.Context, ownerID string, fn func(tx pgx.Tx) error) error {
	if ownerID == "" {
		return errors.New("owner id is required")
	}
	return db.inScope(ctx, ownerSetting, ownerID, fn)
}

// WithPrivilegedTx runs fn in a transaction that sees every owner's rows.
// Only the poller uses this scope.
func (db *DB) WithPrivilegedTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.inScope(ctx, privilegedSetting, "on", fn)
}

// inScope sets a transaction-local configuration value before running fn;
// the value disappears on commit or rollback, so pooled connections never
// leak a scope to the next user.
func (db *DB) inScope(ctx context.Context, setting, value string, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config($1, $2, true)`, setting, value); err != nil {
			return fmt.Errorf("setting %s: %w", setting, err)
		}
		return fn(tx)
	})
}

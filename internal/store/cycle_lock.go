package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pollCycleLockKey int64 = 0x646f6377_02

// CycleLock serializes poll cycles across server replicas with a session
// advisory lock. The lock lives on a dedicated connection held for the
// duration of the cycle.
type CycleLock struct {
	pool *pgxpool.Pool
}

func NewCycleLock(pool *pgxpool.Pool) *CycleLock {
	return &CycleLock{pool: pool}
}

// TryLock returns ok=false without blocking when another replica is running
// a cycle. release must be called when ok is true.
func (l *CycleLock) TryLock(ctx context.Context) (release func(), ok bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring connection for cycle lock: %w", err)
	}

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, pollCycleLockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("trying cycle lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	return func() {
		// The cycle context may already be cancelled on shutdown.
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, pollCycleLockKey); err != nil {
			slog.WarnContext(ctx, "failed to release cycle lock", "error", err)
		}
		conn.Release()
	}, true, nil
}

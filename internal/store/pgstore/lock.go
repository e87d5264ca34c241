package pgstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/db/gen"
)

// Lock is a held session-level advisory lock.
type Lock interface {
	Release(ctx context.Context) error
}

// AdvisoryLocker hands out Postgres advisory locks keyed by scope and name.
// Each lock pins one pooled connection until it is released.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

// TryAcquire returns ok=false without error when another session holds the lock.
func (m *AdvisoryLocker) TryAcquire(ctx context.Context, scope, name string) (Lock, bool, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" || name == "" {
		return nil, false, errors.New("lock scope and name are required")
	}
	if m == nil || m.pool == nil {
		return nil, false, errors.New("lock manager is not configured")
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	q := gen.New(conn)
	key := registry.LockKey(scope, name)

	ok, err := q.TryAcquireAdvisoryLock(ctx, key)
	if err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return &advisoryLock{conn: conn, q: q, key: key}, true, nil
}

type advisoryLock struct {
	conn *pgxpool.Conn
	q    *gen.Queries
	key  int64

	releaseOnce sync.Once
}

func (l *advisoryLock) Release(ctx context.Context) error {
	if l == nil || l.q == nil || l.conn == nil {
		return errors.New("lock is not configured")
	}

	var unlockErr error
	l.releaseOnce.Do(func() {
		unlockErr = l.q.ReleaseAdvisoryLock(ctx, l.key)
		l.conn.Release()
	})
	return unlockErr
}

package sqlstore

import (
	"context"
	"hash/fnv"
	"sync"

	"varda/internal/verr"
)

// locker implements store.Locker. On Postgres it takes a session-level
// advisory lock for the duration of fn, using pg_advisory_lock keyed on the
// sample id's hash; on sqlite, where there is no cross-connection advisory
// lock primitive, it falls back to an in-process mutex keyed by sample id —
// sufficient for tests and the single-node deployment sqlite targets, but
// it only serializes goroutines within this process (documented
// limitation).
type locker struct {
	db        *DB
	mu        sync.Mutex
	perSample map[string]*sync.Mutex
}

func newLocker(db *DB) *locker {
	return &locker{db: db, perSample: map[string]*sync.Mutex{}}
}

func (l *locker) WithSampleLock(ctx context.Context, sampleID string, fn func(context.Context) error) error {
	if l.db.driver == "postgres" {
		return l.withAdvisoryLock(ctx, sampleID, fn)
	}
	return l.withProcessLock(ctx, sampleID, fn)
}

func (l *locker) withAdvisoryLock(ctx context.Context, sampleID string, fn func(context.Context) error) error {
	conn, err := l.db.conn.Conn(ctx)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: acquire connection for lock")
	}
	defer conn.Close()

	key := int64(hashKey(sampleID))
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: acquire advisory lock for sample %s", sampleID)
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)

	return fn(ctx)
}

func (l *locker) withProcessLock(ctx context.Context, sampleID string, fn func(context.Context) error) error {
	l.mu.Lock()
	m, ok := l.perSample[sampleID]
	if !ok {
		m = &sync.Mutex{}
		l.perSample[sampleID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

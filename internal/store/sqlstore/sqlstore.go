// Package sqlstore implements internal/store's interfaces against
// database/sql, grounded on quickly-pick's handlers package (raw
// db.Exec/db.QueryRow/db.Query SQL, no ORM) retargeted from Postgres-only
// to two adapters: modernc.org/sqlite (tests, single-node) and lib/pq
// (Postgres production). Both drivers accept the same $1-style positional
// placeholders used throughout this package.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"        // postgres driver, registered under "postgres"
	_ "modernc.org/sqlite"       // pure-Go sqlite driver, registered under "sqlite"

	"varda/internal/store"
	"varda/internal/verr"
)

// Open opens a database/sql connection for driver ("sqlite" or "postgres"),
// applies the schema, and returns a Store wired against it. driver mirrors
// quickly-pick's cliparse.Config.DatabaseType.
func Open(driver, dsn string) (*DB, error) {
	var sqlDriverName string
	switch driver {
	case "sqlite":
		sqlDriverName = "sqlite"
	case "postgres":
		sqlDriverName = "postgres"
	default:
		return nil, verr.New(verr.Internal, "sqlstore: unknown driver %q", driver)
	}

	conn, err := sql.Open(sqlDriverName, dsn)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: open %s", driver)
	}
	if driver == "sqlite" {
		// sqlite has no true concurrent-writer story; one pooled connection
		// keeps every statement serialized on the single underlying
		// connection (and keeps an in-memory DSN's data visible to every
		// caller, since sqlite gives each new connection its own private
		// in-memory database otherwise).
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: ping %s", driver)
	}
	if err := store.CreateSchema(conn); err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: create schema")
	}

	db := &DB{conn: conn, driver: driver}
	db.locker = newLocker(db)
	return db, nil
}

// DB is the concrete store.Store implementation.
type DB struct {
	conn   *sql.DB
	driver string
	locker *locker // shared by every Locker() call so per-sample mutexes contend
}

func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) Variants() store.VariantStore         { return variantStore{d} }
func (d *DB) Observations() store.ObservationStore { return observationStore{d} }
func (d *DB) Coverage() store.CoverageStore        { return coverageStore{d} }
func (d *DB) DataSources() store.DataSourceStore   { return dataSourceStore{d} }
func (d *DB) Annotations() store.AnnotationStore   { return annotationStore{d} }
func (d *DB) Samples() store.SampleStore           { return sampleStore{d} }
func (d *DB) Groups() store.GroupStore             { return groupStore{d} }
func (d *DB) Tasks() store.TaskStore               { return taskStore{d} }
func (d *DB) Users() store.UserStore               { return userStore{d} }
func (d *DB) Tokens() store.TokenStore             { return tokenStore{d} }
func (d *DB) Locker() store.Locker                 { return d.locker }

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

const maxTransientRetries = 3

// withRetry runs fn up to maxTransientRetries+1 times, sleeping an
// exponentially growing backoff between attempts, for the class of error a
// database throws when it aborts a transaction it could otherwise have
// committed: sqlite's writer-busy signal under the single shared
// connection, and postgres's serialization-failure/deadlock errors. Any
// other error returns immediately, the same attempt-count-plus-sleep shape
// as gohan's UploadVcfGzToDrs retry loop, generalized from an HTTP upload
// to a database statement.
func withRetry(ctx context.Context, fn func() error) error {
	backoff := 5 * time.Millisecond
	var err error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == maxTransientRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func isTransient(err error) bool {
	msg := err.Error()
	for _, substr := range []string{
		"database is locked",          // sqlite busy
		"could not serialize access",  // postgres serialization_failure (40001)
		"deadlock detected",           // postgres deadlock_detected (40P01)
		"driver: bad connection",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

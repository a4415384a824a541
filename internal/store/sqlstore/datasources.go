package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/verr"
)

type dataSourceStore struct{ db *DB }

func (s dataSourceStore) Create(ctx context.Context, ds domain.DataSource) (string, error) {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	createdAt := ds.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO data_sources (id, digest, file_type, gzipped, owner, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ds.ID, ds.Digest, string(ds.FileType), ds.Gzipped, ds.Owner, ds.Size, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: insert data source")
	}
	return ds.ID, nil
}

func (s dataSourceStore) Get(ctx context.Context, id string) (domain.DataSource, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, digest, file_type, gzipped, owner, size, created_at
		FROM data_sources WHERE id = $1
	`, id)
	return scanDataSource(row)
}

func (s dataSourceStore) FindByDigest(ctx context.Context, owner, digest string) (domain.DataSource, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, digest, file_type, gzipped, owner, size, created_at
		FROM data_sources WHERE owner = $1 AND digest = $2
	`, owner, digest)
	ds, err := scanDataSource(row)
	if err != nil {
		if verr.KindOf(err) == verr.NotFound {
			return domain.DataSource{}, false, nil
		}
		return domain.DataSource{}, false, err
	}
	return ds, true, nil
}

func scanDataSource(row *sql.Row) (domain.DataSource, error) {
	var ds domain.DataSource
	var fileType, createdAt string
	err := row.Scan(&ds.ID, &ds.Digest, &fileType, &ds.Gzipped, &ds.Owner, &ds.Size, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.DataSource{}, verr.New(verr.NotFound, "sqlstore: data source not found")
		}
		return domain.DataSource{}, verr.Wrap(verr.Internal, err, "sqlstore: scan data source")
	}
	ds.FileType = domain.FileType(fileType)
	ds.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return ds, nil
}

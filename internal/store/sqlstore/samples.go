package sqlstore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/verr"
)

type sampleStore struct{ db *DB }

func (s sampleStore) Create(ctx context.Context, sm domain.Sample) error {
	if sm.ID == "" {
		sm.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO samples (id, owner, name, pool_size, coverage_profile, public, active, notes, import_task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sm.ID, sm.Owner, sm.Name, sm.PoolSize, sm.CoverageProfile, sm.Public, sm.Active, sm.Notes, sm.ImportTaskID)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: insert sample")
	}
	return nil
}

func (s sampleStore) Get(ctx context.Context, id string) (domain.Sample, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, owner, name, pool_size, coverage_profile, public, active, notes, import_task_id
		FROM samples WHERE id = $1
	`, id)
	return scanSample(row)
}

func scanSample(row *sql.Row) (domain.Sample, error) {
	var sm domain.Sample
	err := row.Scan(&sm.ID, &sm.Owner, &sm.Name, &sm.PoolSize, &sm.CoverageProfile, &sm.Public, &sm.Active, &sm.Notes, &sm.ImportTaskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Sample{}, verr.New(verr.NotFound, "sqlstore: sample not found")
		}
		return domain.Sample{}, verr.Wrap(verr.Internal, err, "sqlstore: scan sample")
	}
	return sm, nil
}

func (s sampleStore) List(ctx context.Context) ([]domain.Sample, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, owner, name, pool_size, coverage_profile, public, active, notes, import_task_id
		FROM samples ORDER BY id
	`)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: list samples")
	}
	defer rows.Close()

	var out []domain.Sample
	for rows.Next() {
		var sm domain.Sample
		if err := rows.Scan(&sm.ID, &sm.Owner, &sm.Name, &sm.PoolSize, &sm.CoverageProfile, &sm.Public, &sm.Active, &sm.Notes, &sm.ImportTaskID); err != nil {
			return nil, verr.Wrap(verr.Internal, err, "sqlstore: scan sample row")
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s sampleStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.conn.ExecContext(ctx, `UPDATE samples SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: set sample active")
	}
	return requireRowAffected(res, "sample", id)
}

func (s sampleStore) SetImportTask(ctx context.Context, id, taskID string) error {
	res, err := s.db.conn.ExecContext(ctx, `UPDATE samples SET import_task_id = $1 WHERE id = $2`, taskID, id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: set sample import task")
	}
	return requireRowAffected(res, "sample", id)
}

func requireRowAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: rows affected")
	}
	if n == 0 {
		return verr.New(verr.NotFound, "sqlstore: %s %s not found", kind, id)
	}
	return nil
}

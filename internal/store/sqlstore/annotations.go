package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/verr"
)

type annotationStore struct{ db *DB }

func (s annotationStore) Create(ctx context.Context, a domain.Annotation) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	queries, err := json.Marshal(a.Queries)
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: marshal annotation queries")
	}
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO annotations (id, original_data_source_id, annotated_data_source_id, queries, task_id)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.OriginalDataSourceID, a.AnnotatedDataSourceID, string(queries), a.TaskID)
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: insert annotation")
	}
	return a.ID, nil
}

func (s annotationStore) Get(ctx context.Context, id string) (domain.Annotation, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, original_data_source_id, annotated_data_source_id, queries, task_id
		FROM annotations WHERE id = $1
	`, id)
	return scanAnnotation(row)
}

func (s annotationStore) SetAnnotatedDataSource(ctx context.Context, id, dataSourceID string) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE annotations SET annotated_data_source_id = $1 WHERE id = $2
	`, dataSourceID, id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: set annotated data source")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: check annotation update")
	}
	if n == 0 {
		return verr.New(verr.NotFound, "sqlstore: annotation %s not found", id)
	}
	return nil
}

func (s annotationStore) SetTask(ctx context.Context, id, taskID string) error {
	res, err := s.db.conn.ExecContext(ctx, `UPDATE annotations SET task_id = $1 WHERE id = $2`, taskID, id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: set annotation task")
	}
	return requireRowAffected(res, "annotation", id)
}

func scanAnnotation(row *sql.Row) (domain.Annotation, error) {
	var a domain.Annotation
	var queries string
	err := row.Scan(&a.ID, &a.OriginalDataSourceID, &a.AnnotatedDataSourceID, &queries, &a.TaskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Annotation{}, verr.New(verr.NotFound, "sqlstore: annotation not found")
		}
		return domain.Annotation{}, verr.Wrap(verr.Internal, err, "sqlstore: scan annotation")
	}
	if err := json.Unmarshal([]byte(queries), &a.Queries); err != nil {
		return domain.Annotation{}, verr.Wrap(verr.Internal, err, "sqlstore: unmarshal annotation queries")
	}
	return a, nil
}

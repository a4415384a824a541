package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/verr"
)

type taskStore struct{ db *DB }

func (s taskStore) Create(ctx context.Context, t domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := nowRFC3339()
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, state, progress, error, target, data_source_id, cancel_requested,
			checkpoint_byte_offset, checkpoint_rows_accepted, checkpoint_rows_rejected,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, string(t.Kind), string(domain.TaskWaiting), 0.0, "", t.Target, t.DataSourceID, false, 0, 0, 0, now, now)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: insert task")
	}
	return nil
}

func (s taskStore) Get(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, kind, state, progress, error, target, data_source_id, cancel_requested,
			checkpoint_byte_offset, checkpoint_rows_accepted, checkpoint_rows_rejected,
			created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)
	return scanTask(row)
}

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var kind, state, createdAt, updatedAt string
	err := row.Scan(&t.ID, &kind, &state, &t.Progress, &t.Error, &t.Target, &t.DataSourceID, &t.CancelRequested,
		&t.Checkpoint.ByteOffset, &t.Checkpoint.RowsAccepted, &t.Checkpoint.RowsRejected,
		&createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, verr.New(verr.NotFound, "sqlstore: task not found")
		}
		return domain.Task{}, verr.Wrap(verr.Internal, err, "sqlstore: scan task")
	}
	t.Kind = domain.TaskKind(kind)
	t.State = domain.TaskState(state)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return t, nil
}

// ClaimNextWaiting claims the oldest waiting task of kind under a
// transaction, so two worker-pool goroutines racing this call never claim
// the same row: at most one worker ever runs a given task.
func (s taskStore) ClaimNextWaiting(ctx context.Context, kind domain.TaskKind) (domain.Task, bool, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, false, verr.Wrap(verr.Internal, err, "sqlstore: begin claim tx")
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tasks WHERE kind = $1 AND state = $2 ORDER BY created_at LIMIT 1
	`, string(kind), string(domain.TaskWaiting)).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, verr.Wrap(verr.Internal, err, "sqlstore: find waiting task")
	}

	now := nowRFC3339()
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4
	`, string(domain.TaskRunning), now, id, string(domain.TaskWaiting))
	if err != nil {
		return domain.Task{}, false, verr.Wrap(verr.Internal, err, "sqlstore: claim task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Task{}, false, verr.Wrap(verr.Internal, err, "sqlstore: claim rows affected")
	}
	if n == 0 {
		// Another worker claimed it between the SELECT and the UPDATE.
		return domain.Task{}, false, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, state, progress, error, target, data_source_id, cancel_requested,
			checkpoint_byte_offset, checkpoint_rows_accepted, checkpoint_rows_rejected,
			created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)
	t, err := scanTask(row)
	if err != nil {
		return domain.Task{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, false, verr.Wrap(verr.Internal, err, "sqlstore: commit claim")
	}
	return t, true, nil
}

func (s taskStore) UpdateProgress(ctx context.Context, id string, progress float64, checkpoint domain.Checkpoint) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE tasks SET progress = $1, checkpoint_byte_offset = $2, checkpoint_rows_accepted = $3,
			checkpoint_rows_rejected = $4, updated_at = $5
		WHERE id = $6
	`, progress, checkpoint.ByteOffset, checkpoint.RowsAccepted, checkpoint.RowsRejected, nowRFC3339(), id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: update task progress")
	}
	return requireRowAffected(res, "task", id)
}

func (s taskStore) Finish(ctx context.Context, id string, state domain.TaskState, errMsg string) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE tasks SET state = $1, error = $2, progress = $3, updated_at = $4 WHERE id = $5
	`, string(state), errMsg, 1.0, nowRFC3339(), id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: finish task")
	}
	return requireRowAffected(res, "task", id)
}

func (s taskStore) AnyActiveForTarget(ctx context.Context, target string) (bool, error) {
	var exists bool
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tasks WHERE target = $1 AND state IN ($2, $3)
		)
	`, target, string(domain.TaskWaiting), string(domain.TaskRunning)).Scan(&exists)
	if err != nil {
		return false, verr.Wrap(verr.Internal, err, "sqlstore: check active tasks for target %s", target)
	}
	return exists, nil
}

func (s taskStore) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE tasks SET cancel_requested = true, updated_at = $1 WHERE id = $2 AND state IN ($3, $4)
	`, nowRFC3339(), id, string(domain.TaskWaiting), string(domain.TaskRunning))
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: request cancel")
	}
	return requireRowAffected(res, "task", id)
}

// Reschedule returns a finished task to waiting, clearing progress and
// error, for a manual retry of a failed or stale run.
func (s taskStore) Reschedule(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE tasks SET state = $1, progress = 0, error = '', cancel_requested = false, updated_at = $2
		WHERE id = $3 AND state IN ($4, $5)
	`, string(domain.TaskWaiting), nowRFC3339(), id, string(domain.TaskSuccess), string(domain.TaskFailure))
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: reschedule task")
	}
	return requireRowAffected(res, "task", id)
}

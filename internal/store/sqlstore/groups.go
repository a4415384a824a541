package sqlstore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/verr"
)

type groupStore struct{ db *DB }

func (s groupStore) Create(ctx context.Context, g domain.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx, `INSERT INTO groups (id, owner, name) VALUES ($1, $2, $3)`, g.ID, g.Owner, g.Name)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: insert group")
	}
	for _, sampleID := range g.SampleIDs {
		if err := s.AddMember(ctx, g.ID, sampleID); err != nil {
			return err
		}
	}
	return nil
}

func (s groupStore) Get(ctx context.Context, id string) (domain.Group, error) {
	var g domain.Group
	err := s.db.conn.QueryRowContext(ctx, `SELECT id, owner, name FROM groups WHERE id = $1`, id).Scan(&g.ID, &g.Owner, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Group{}, verr.New(verr.NotFound, "sqlstore: group not found")
		}
		return domain.Group{}, verr.Wrap(verr.Internal, err, "sqlstore: scan group")
	}

	rows, err := s.db.conn.QueryContext(ctx, `SELECT sample_id FROM sample_groups WHERE group_id = $1 ORDER BY sample_id`, id)
	if err != nil {
		return domain.Group{}, verr.Wrap(verr.Internal, err, "sqlstore: list group members")
	}
	defer rows.Close()
	for rows.Next() {
		var sampleID string
		if err := rows.Scan(&sampleID); err != nil {
			return domain.Group{}, verr.Wrap(verr.Internal, err, "sqlstore: scan group member")
		}
		g.SampleIDs = append(g.SampleIDs, sampleID)
	}
	return g, rows.Err()
}

func (s groupStore) AddMember(ctx context.Context, groupID, sampleID string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO sample_groups (sample_id, group_id) VALUES ($1, $2)
		ON CONFLICT (sample_id, group_id) DO NOTHING
	`, sampleID, groupID)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: add group member")
	}
	return nil
}

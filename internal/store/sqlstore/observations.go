package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/verr"
)

type observationStore struct{ db *DB }

func (s observationStore) CreateVariation(ctx context.Context, v domain.Variation) (string, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO variations (id, sample_id, data_source_id)
		VALUES ($1, $2, $3)
	`, v.ID, v.SampleID, v.DataSourceID)
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: create variation for sample %s", v.SampleID)
	}
	return v.ID, nil
}

func (s observationStore) FindVariation(ctx context.Context, sampleID, dataSourceID string) (string, bool, error) {
	var id string
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT id FROM variations WHERE sample_id = $1 AND data_source_id = $2
	`, sampleID, dataSourceID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, verr.Wrap(verr.Internal, err, "sqlstore: find variation")
	}
	return id, true, nil
}

func (s observationStore) HasVariation(ctx context.Context, sampleID string) (bool, error) {
	var exists bool
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM variations WHERE sample_id = $1)
	`, sampleID).Scan(&exists)
	if err != nil {
		return false, verr.Wrap(verr.Internal, err, "sqlstore: check variation existence for sample %s", sampleID)
	}
	return exists, nil
}

func (s observationStore) SamplesWithVariation(ctx context.Context, dataSourceID string) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT DISTINCT sample_id FROM variations WHERE data_source_id = $1
	`, dataSourceID)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: list samples with variation for data source %s", dataSourceID)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, verr.Wrap(verr.Internal, err, "sqlstore: scan sample with variation")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: iterate samples with variation")
	}
	return ids, nil
}

func (s observationStore) Insert(ctx context.Context, obs domain.Observation) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: begin insert observation")
	}
	defer tx.Rollback()
	if err := insertObservationTx(ctx, tx, obs, 0); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: commit insert observation")
	}
	return nil
}

// InsertBatch flushes every row of obs in one transaction, the
// add_observations operation internal/ingest calls once per accumulated
// batch rather than once per record. Before inserting, it checks the
// highest checkpoint_offset already committed for this batch's Variation;
// if that offset already reaches checkpointOffset, the batch was already
// applied by an earlier commit whose checkpoint write never landed (worker
// crash between the two), and is skipped rather than re-merged into
// observations.support.
func (s observationStore) InsertBatch(ctx context.Context, checkpointOffset int64, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	return withRetry(ctx, func() error {
		tx, err := s.db.conn.BeginTx(ctx, nil)
		if err != nil {
			return verr.Wrap(verr.Internal, err, "sqlstore: begin insert observation batch")
		}
		defer tx.Rollback()

		var applied int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(checkpoint_offset), 0) FROM observations WHERE variation_id = $1
		`, obs[0].VariationID).Scan(&applied)
		if err != nil {
			return verr.Wrap(verr.Internal, err, "sqlstore: resolve applied checkpoint for variation %s", obs[0].VariationID)
		}
		if applied >= checkpointOffset {
			return tx.Commit()
		}

		for _, o := range obs {
			if err := insertObservationTx(ctx, tx, o, checkpointOffset); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return verr.Wrap(verr.Internal, err, "sqlstore: commit insert observation batch")
		}
		return nil
	})
}

func insertObservationTx(ctx context.Context, tx *sql.Tx, obs domain.Observation, checkpointOffset int64) error {
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	// sample_id is denormalized onto observations (alongside variation_id)
	// so CountForVariant can join the selection predicate straight against
	// the samples table without a second hop through variations.
	var sampleID string
	err := tx.QueryRowContext(ctx, `SELECT sample_id FROM variations WHERE id = $1`, obs.VariationID).Scan(&sampleID)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: resolve sample for variation %s", obs.VariationID)
	}

	// zygosity is set only on first insert: ON CONFLICT only accumulates
	// support, so a pooled sample's observation row keeps the zygosity of
	// whichever genotype column was inserted first for that variant.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO observations (id, variant_id, variation_id, sample_id, support, zygosity, checkpoint_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (variant_id, sample_id) DO UPDATE SET
			support = observations.support + excluded.support,
			checkpoint_offset = excluded.checkpoint_offset
	`, obs.ID, obs.VariantID, obs.VariationID, sampleID, obs.Support, string(obs.Zygosity), checkpointOffset)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: insert observation")
	}
	return nil
}

func (s observationStore) CountForVariant(ctx context.Context, variantID string, pred selection.Predicate) (int, int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(o.support), 0)
		FROM (SELECT sample_id, support FROM observations WHERE variant_id = $1) o
		JOIN samples ON samples.id = o.sample_id
		WHERE %s
	`, shiftPlaceholders(pred.SQL, 1))

	args := append([]interface{}{variantID}, pred.Args...)
	var observed, totalSupport int
	if err := s.db.conn.QueryRowContext(ctx, query, args...).Scan(&observed, &totalSupport); err != nil {
		return 0, 0, verr.Wrap(verr.Internal, err, "sqlstore: count observations for variant %s", variantID)
	}
	return observed, totalSupport, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"varda/internal/binning"
	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/verr"
)

type coverageStore struct{ db *DB }

func (s coverageStore) CreateRun(ctx context.Context, c domain.Coverage) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO coverages (id, sample_id, data_source_id)
		VALUES ($1, $2, $3)
	`, c.ID, c.SampleID, c.DataSourceID)
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: create coverage run for sample %s", c.SampleID)
	}
	return c.ID, nil
}

func (s coverageStore) FindRun(ctx context.Context, sampleID, dataSourceID string) (string, bool, error) {
	var id string
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT id FROM coverages WHERE sample_id = $1 AND data_source_id = $2
	`, sampleID, dataSourceID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, verr.Wrap(verr.Internal, err, "sqlstore: find coverage run")
	}
	return id, true, nil
}

func (s coverageStore) HasCoverage(ctx context.Context, sampleID string) (bool, error) {
	var exists bool
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM coverages WHERE sample_id = $1)
	`, sampleID).Scan(&exists)
	if err != nil {
		return false, verr.Wrap(verr.Internal, err, "sqlstore: check coverage existence for sample %s", sampleID)
	}
	return exists, nil
}

func (s coverageStore) InsertRegion(ctx context.Context, r domain.CoveredRegion) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: begin insert covered region")
	}
	defer tx.Rollback()
	if err := insertCoveredRegionTx(ctx, tx, r, 0); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: commit insert covered region")
	}
	return nil
}

// InsertRegionsBatch flushes every row of regions in one transaction, the
// coverage analogue of ObservationStore.InsertBatch: it tags each row with
// checkpointOffset and skips the whole batch if this Coverage run already
// has a row tagged at or past that offset, so a crash between this commit
// and the task's checkpoint write can't duplicate covered_regions rows on
// resume.
func (s coverageStore) InsertRegionsBatch(ctx context.Context, checkpointOffset int64, regions []domain.CoveredRegion) error {
	if len(regions) == 0 {
		return nil
	}
	return withRetry(ctx, func() error {
		tx, err := s.db.conn.BeginTx(ctx, nil)
		if err != nil {
			return verr.Wrap(verr.Internal, err, "sqlstore: begin insert covered regions batch")
		}
		defer tx.Rollback()

		var applied int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(checkpoint_offset), 0) FROM covered_regions WHERE coverage_id = $1
		`, regions[0].CoverageID).Scan(&applied)
		if err != nil {
			return verr.Wrap(verr.Internal, err, "sqlstore: resolve applied checkpoint for coverage %s", regions[0].CoverageID)
		}
		if applied >= checkpointOffset {
			return tx.Commit()
		}

		for _, r := range regions {
			if err := insertCoveredRegionTx(ctx, tx, r, checkpointOffset); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return verr.Wrap(verr.Internal, err, "sqlstore: commit insert covered regions batch")
		}
		return nil
	})
}

func insertCoveredRegionTx(ctx context.Context, tx *sql.Tx, r domain.CoveredRegion, checkpointOffset int64) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	var sampleID string
	err := tx.QueryRowContext(ctx, `SELECT sample_id FROM coverages WHERE id = $1`, r.CoverageID).Scan(&sampleID)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: resolve sample for coverage %s", r.CoverageID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO covered_regions (id, coverage_id, sample_id, chrom, begin_pos, end_pos, bin, checkpoint_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.CoverageID, sampleID, r.Chrom, r.Begin, r.End, uint32(r.Bin), checkpointOffset)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: insert covered region")
	}
	return nil
}

// CountCovering computes Σ pool_size over samples matching pred that either
// have a covered region spanning pos, or were named explicitly; the
// explicit bypass is spliced in as an OR id IN (...) clause
// built from pred.ExplicitSampleIDs rather than a second round trip, so the
// covered count takes one query (the frequency engine's observed count is a
// separate CountForVariant query).
func (s coverageStore) CountCovering(ctx context.Context, chrom string, pos int64, bins []binning.Bin, pred selection.Predicate) (int, error) {
	if len(bins) == 0 && len(pred.ExplicitSampleIDs) == 0 {
		return 0, nil
	}

	var args []interface{}
	binPlaceholders := make([]string, len(bins))
	args = append(args, chrom, pos, pos)
	for i, b := range bins {
		args = append(args, uint32(b))
		binPlaceholders[i] = fmt.Sprintf("$%d", len(args))
	}
	coveredClause := "FALSE"
	if len(bins) > 0 {
		coveredClause = fmt.Sprintf(`
			s.id IN (
				SELECT sample_id FROM covered_regions
				WHERE chrom = $1 AND begin_pos <= $2 AND end_pos >= $3 AND bin IN (%s)
			)`, strings.Join(binPlaceholders, ", "))
	}

	explicitPlaceholders := make([]string, len(pred.ExplicitSampleIDs))
	for i, id := range pred.ExplicitSampleIDs {
		args = append(args, id)
		explicitPlaceholders[i] = fmt.Sprintf("$%d", len(args))
	}
	explicitClause := "FALSE"
	if len(explicitPlaceholders) > 0 {
		explicitClause = fmt.Sprintf("s.id IN (%s)", strings.Join(explicitPlaceholders, ", "))
	}

	predSQL := shiftPlaceholders(pred.SQL, len(args))
	args = append(args, pred.Args...)

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(s.pool_size), 0)
		FROM samples s
		WHERE %s AND (%s OR %s)
	`, predSQL, coveredClause, explicitClause)

	var total int
	if err := s.db.conn.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, verr.Wrap(verr.Internal, err, "sqlstore: count covering pool size")
	}
	return total, nil
}

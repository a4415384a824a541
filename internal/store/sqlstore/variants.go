package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"varda/internal/binning"
	"varda/internal/domain"
	"varda/internal/verr"
)

type variantStore struct{ db *DB }

func (s variantStore) GetOrCreate(ctx context.Context, v domain.Variant) (domain.Variant, bool, error) {
	existing, err := s.byIdentity(ctx, v.Chrom, v.Begin, v.End, v.Observed)
	if err == nil {
		return existing, true, nil
	}
	if verr.KindOf(err) != verr.NotFound {
		return domain.Variant{}, false, err
	}

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO variants (id, chrom, begin_pos, end_pos, observed, bin, class)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.Chrom, v.Begin, v.End, v.Observed, v.Bin, string(v.Class))
	if err != nil {
		// Lost a race against a concurrent insert of the same identity:
		// fall back to reading the row the winner created (the uniqueness
		// invariant is enforced by the UNIQUE constraint, not by this
		// store).
		if existing, rerr := s.byIdentity(ctx, v.Chrom, v.Begin, v.End, v.Observed); rerr == nil {
			return existing, true, nil
		}
		return domain.Variant{}, false, verr.Wrap(verr.IntegrityConflict, err, "sqlstore: insert variant")
	}
	return v, false, nil
}

func (s variantStore) byIdentity(ctx context.Context, chrom string, begin, end int64, observed string) (domain.Variant, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, chrom, begin_pos, end_pos, observed, bin, class
		FROM variants WHERE chrom = $1 AND begin_pos = $2 AND end_pos = $3 AND observed = $4
	`, chrom, begin, end, observed)
	return scanVariant(row)
}

func (s variantStore) Get(ctx context.Context, id string) (domain.Variant, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, chrom, begin_pos, end_pos, observed, bin, class FROM variants WHERE id = $1
	`, id)
	return scanVariant(row)
}

func scanVariant(row *sql.Row) (domain.Variant, error) {
	var v domain.Variant
	var class string
	var bin uint32
	if err := row.Scan(&v.ID, &v.Chrom, &v.Begin, &v.End, &v.Observed, &bin, &class); err != nil {
		if err == sql.ErrNoRows {
			return domain.Variant{}, verr.New(verr.NotFound, "sqlstore: variant not found")
		}
		return domain.Variant{}, verr.Wrap(verr.Internal, err, "sqlstore: scan variant")
	}
	v.Bin = binning.Bin(bin)
	v.Class = domain.VariantClass(class)
	return v, nil
}

func (s variantStore) OverlappingBins(ctx context.Context, chrom string, begin, end int64, bins []binning.Bin) ([]domain.Variant, error) {
	if len(bins) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(bins))
	args := make([]interface{}, 0, len(bins)+3)
	args = append(args, chrom)
	for i, b := range bins {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, uint32(b))
	}
	args = append(args, end, begin)

	query := fmt.Sprintf(`
		SELECT id, chrom, begin_pos, end_pos, observed, bin, class
		FROM variants
		WHERE chrom = $1 AND bin IN (%s) AND begin_pos <= $%d AND end_pos >= $%d
	`, strings.Join(placeholders, ", "), len(bins)+2, len(bins)+3)

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "sqlstore: overlapping bins query")
	}
	defer rows.Close()

	var out []domain.Variant
	for rows.Next() {
		var v domain.Variant
		var class string
		var bin uint32
		if err := rows.Scan(&v.ID, &v.Chrom, &v.Begin, &v.End, &v.Observed, &bin, &class); err != nil {
			return nil, verr.Wrap(verr.Internal, err, "sqlstore: scan overlapping variant")
		}
		v.Bin = binning.Bin(bin)
		v.Class = domain.VariantClass(class)
		out = append(out, v)
	}
	return out, rows.Err()
}

package frequency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/store/sqlstore"
)

func openTest(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustParse(t *testing.T, expr string) *selection.Expr {
	t.Helper()
	e, err := selection.Parse(expr)
	require.NoError(t, err)
	return e
}

func TestFrequencyObservedAndCovered(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := domain.Sample{ID: "s1", Owner: "alice", Name: "s1", PoolSize: 3, CoverageProfile: true, Active: true}
	require.NoError(t, db.Samples().Create(ctx, sample))

	ds := domain.DataSource{ID: "ds1", Digest: "abc", FileType: domain.FileTypeVCF, Owner: "alice"}
	_, err := db.DataSources().Create(ctx, ds)
	require.NoError(t, err)
	variationID, err := db.Observations().CreateVariation(ctx, domain.Variation{SampleID: sample.ID, DataSourceID: ds.ID})
	require.NoError(t, err)

	covDS := domain.DataSource{ID: "ds2", Digest: "def", FileType: domain.FileTypeBED, Owner: "alice"}
	_, err = db.DataSources().Create(ctx, covDS)
	require.NoError(t, err)
	coverageID, err := db.Coverage().CreateRun(ctx, domain.Coverage{SampleID: sample.ID, DataSourceID: covDS.ID})
	require.NoError(t, err)

	variant := domain.Variant{Chrom: "19", Begin: 1000, End: 1000, Observed: "T", Class: domain.ClassSNV}
	variant, _, err = db.Variants().GetOrCreate(ctx, variant)
	require.NoError(t, err)

	require.NoError(t, db.Observations().Insert(ctx, domain.Observation{
		VariantID: variant.ID, VariationID: variationID, Support: 2, Zygosity: domain.ZygosityHet,
	}))
	require.NoError(t, db.Coverage().InsertRegion(ctx, domain.CoveredRegion{
		CoverageID: coverageID, Chrom: "19", Begin: 900, End: 1100,
	}))

	eng := New(db)
	result, err := eng.Frequency(ctx, variant, mustParse(t, "*"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Observed)
	assert.Equal(t, 3, result.Covered)

	ratio, ok := result.Ratio()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, ratio, 1e-9)
}

func TestFrequencyUndefinedWhenUncovered(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := domain.Sample{ID: "s1", Owner: "alice", Name: "s1", PoolSize: 1, CoverageProfile: true, Active: true}
	require.NoError(t, db.Samples().Create(ctx, sample))

	variant := domain.Variant{Chrom: "19", Begin: 5000, End: 5000, Observed: "A", Class: domain.ClassSNV}
	variant, _, err := db.Variants().GetOrCreate(ctx, variant)
	require.NoError(t, err)

	eng := New(db)
	result, err := eng.Frequency(ctx, variant, mustParse(t, "*"))
	require.NoError(t, err)
	_, ok := result.Ratio()
	assert.False(t, ok)
}

func TestFrequencyExplicitSampleCountsPoolSizeUnconditionally(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := domain.Sample{ID: "s1", Owner: "alice", Name: "s1", PoolSize: 5, CoverageProfile: false, Active: false}
	require.NoError(t, db.Samples().Create(ctx, sample))

	variant := domain.Variant{Chrom: "19", Begin: 42, End: 42, Observed: "C", Class: domain.ClassSNV}
	variant, _, err := db.Variants().GetOrCreate(ctx, variant)
	require.NoError(t, err)

	eng := New(db)
	result, err := eng.Frequency(ctx, variant, mustParse(t, "sample:s1"))
	require.NoError(t, err)
	assert.Equal(t, 5, result.Covered, "inactive, coverage-less sample still counts when named explicitly")

	wildcard, err := eng.Frequency(ctx, variant, mustParse(t, "*"))
	require.NoError(t, err)
	assert.Equal(t, 0, wildcard.Covered, "wildcard excludes inactive/coverage-less samples")
}

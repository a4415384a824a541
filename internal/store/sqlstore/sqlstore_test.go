package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"varda/internal/binning"
	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/verr"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestVariantGetOrCreateReusesIdentity(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	v := domain.Variant{Chrom: "19", Begin: 100, End: 100, Observed: "G", Class: domain.ClassSNV}
	first, reused, err := db.Variants().GetOrCreate(ctx, v)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEmpty(t, first.ID)

	second, reused, err := db.Variants().GetOrCreate(ctx, v)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, second.ID)
}

func TestVariantOverlappingBins(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	// Variant spans the one-based inclusive interval [100, 104]; binning
	// works in zero-based half-open coordinates, so the conversion is
	// begin-1, end (the same conversion internal/frequency applies).
	bin, err := binning.Default.Assign(99, 104)
	require.NoError(t, err)
	v := domain.Variant{Chrom: "19", Begin: 100, End: 104, Observed: "", Bin: bin, Class: domain.ClassDeletion}
	_, _, err = db.Variants().GetOrCreate(ctx, v)
	require.NoError(t, err)

	found, err := db.Variants().OverlappingBins(ctx, "19", 101, 103, nil)
	require.NoError(t, err)
	assert.Empty(t, found) // no bins given => no query

	found, err = db.Variants().OverlappingBins(ctx, "19", 101, 103, binning.Default.Overlapping(100, 103))
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func setupSample(t *testing.T, db *DB, ctx context.Context, active bool) domain.Sample {
	t.Helper()
	sm := domain.Sample{Owner: "alice", Name: "s1", PoolSize: 1, CoverageProfile: true, Active: active}
	require.NoError(t, db.Samples().Create(ctx, sm))
	list, err := db.Samples().List(ctx)
	require.NoError(t, err)
	for _, s := range list {
		if s.Name == "s1" {
			return s
		}
	}
	t.Fatal("sample not found after create")
	return domain.Sample{}
}

func TestObservationCountForVariantRespectsSelection(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := setupSample(t, db, ctx, true)

	ds := domain.DataSource{ID: "ds1", Digest: "abc", FileType: domain.FileTypeVCF, Owner: sample.Owner}
	_, err := db.DataSources().Create(ctx, ds)
	require.NoError(t, err)

	found, ok, err := db.DataSources().FindByDigest(ctx, sample.Owner, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ds.ID, found.ID)

	variationID, err := db.Observations().CreateVariation(ctx, domain.Variation{SampleID: sample.ID, DataSourceID: ds.ID})
	require.NoError(t, err)

	_, ok2, err := db.Observations().FindVariation(ctx, sample.ID, ds.ID)
	require.NoError(t, err)
	assert.True(t, ok2)
	_, ok3, err := db.Observations().FindVariation(ctx, sample.ID, "no-such-ds")
	require.NoError(t, err)
	assert.False(t, ok3)

	v := domain.Variant{Chrom: "19", Begin: 200, End: 200, Observed: "T", Class: domain.ClassSNV}
	variant, _, err := db.Variants().GetOrCreate(ctx, v)
	require.NoError(t, err)

	other := domain.Variant{Chrom: "19", Begin: 300, End: 300, Observed: "A", Class: domain.ClassSNV}
	otherVariant, _, err := db.Variants().GetOrCreate(ctx, other)
	require.NoError(t, err)

	require.NoError(t, db.Observations().InsertBatch(ctx, 1, []domain.Observation{
		{VariantID: variant.ID, VariationID: variationID, Support: 1, Zygosity: domain.ZygosityHet},
		{VariantID: variant.ID, VariationID: variationID, Support: 2, Zygosity: domain.ZygosityHom},
		{VariantID: otherVariant.ID, VariationID: variationID, Support: 1, Zygosity: domain.ZygosityHom},
	}))

	expr, err := selection.Parse("*")
	require.NoError(t, err)
	pred := selection.Compile(expr)

	observed, support, err := db.Observations().CountForVariant(ctx, variant.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 1, observed)
	assert.Equal(t, 3, support)

	expr2, err := selection.Parse("sample:nonexistent")
	require.NoError(t, err)
	pred2 := selection.Compile(expr2)
	observed2, _, err := db.Observations().CountForVariant(ctx, variant.ID, pred2)
	require.NoError(t, err)
	assert.Equal(t, 0, observed2)
}

func TestCoverageRunAndCountCovering(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := setupSample(t, db, ctx, true)
	ds := domain.DataSource{ID: "ds-bed", Digest: "def", FileType: domain.FileTypeBED, Owner: sample.Owner}
	_, err := db.DataSources().Create(ctx, ds)
	require.NoError(t, err)

	coverageID, err := db.Coverage().CreateRun(ctx, domain.Coverage{SampleID: sample.ID, DataSourceID: ds.ID})
	require.NoError(t, err)

	bin, err := binning.Default.Assign(99, 200)
	require.NoError(t, err)
	require.NoError(t, db.Coverage().InsertRegion(ctx, domain.CoveredRegion{
		CoverageID: coverageID, Chrom: "19", Begin: 100, End: 200, Bin: bin,
	}))

	expr, err := selection.Parse("*")
	require.NoError(t, err)
	pred := selection.Compile(expr)

	poolSize, err := db.Coverage().CountCovering(ctx, "19", 150, binning.Default.Overlapping(149, 150), pred)
	require.NoError(t, err)
	assert.Equal(t, 1, poolSize)

	uncovered, err := db.Coverage().CountCovering(ctx, "19", 500, binning.Default.Overlapping(499, 500), pred)
	require.NoError(t, err)
	assert.Equal(t, 0, uncovered)

	explicitExpr, err := selection.Parse("sample:" + sample.ID)
	require.NoError(t, err)
	explicitPred := selection.Compile(explicitExpr)
	explicitCount, err := db.Coverage().CountCovering(ctx, "19", 500, binning.Default.Overlapping(499, 500), explicitPred)
	require.NoError(t, err)
	assert.Equal(t, 1, explicitCount, "explicit sample clause counts pool_size unconditionally")
}

func TestTaskClaimAndFinish(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	task := domain.Task{Kind: domain.TaskImportVariation, Target: "sample-1"}
	require.NoError(t, db.Tasks().Create(ctx, task))

	claimed, ok, err := db.Tasks().ClaimNextWaiting(ctx, domain.TaskImportVariation)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TaskRunning, claimed.State)

	_, ok, err = db.Tasks().ClaimNextWaiting(ctx, domain.TaskImportVariation)
	require.NoError(t, err)
	assert.False(t, ok, "no second waiting task of this kind")

	require.NoError(t, db.Tasks().Finish(ctx, claimed.ID, domain.TaskSuccess, ""))
	final, err := db.Tasks().Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSuccess, final.State)

	require.NoError(t, db.Tasks().Reschedule(ctx, claimed.ID))
	rescheduled, err := db.Tasks().Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskWaiting, rescheduled.State)
}

func TestWithRetryRetriesTransientErrorsThenGivesUp(t *testing.T) {
	ctx := context.Background()
	calls := 0
	transient := verr.Wrap(verr.Internal, errors.New("database is locked"), "sqlstore: insert observation batch")

	err := withRetry(ctx, func() error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, maxTransientRetries+1, calls)
}

func TestWithRetryStopsOnFirstNonTransientError(t *testing.T) {
	ctx := context.Background()
	calls := 0
	permanent := verr.New(verr.IntegrityConflict, "sqlstore: unique constraint")

	err := withRetry(ctx, func() error {
		calls++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetrySucceedsAfterTransientErrors(t *testing.T) {
	ctx := context.Background()
	calls := 0

	err := withRetry(ctx, func() error {
		calls++
		if calls < 3 {
			return verr.Wrap(verr.Internal, errors.New("could not serialize access due to concurrent update"), "sqlstore: commit")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestInsertBatchSkipsAlreadyAppliedCheckpointOffset(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := setupSample(t, db, ctx, false)
	ds := domain.DataSource{ID: "ds-replay", Digest: "replay", FileType: domain.FileTypeVCF, Owner: sample.Owner}
	_, err := db.DataSources().Create(ctx, ds)
	require.NoError(t, err)
	variationID, err := db.Observations().CreateVariation(ctx, domain.Variation{SampleID: sample.ID, DataSourceID: ds.ID})
	require.NoError(t, err)

	variant, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 400, End: 400, Observed: "G", Class: domain.ClassSNV})
	require.NoError(t, err)

	batch := []domain.Observation{
		{VariantID: variant.ID, VariationID: variationID, Support: 1, Zygosity: domain.ZygosityHet},
	}

	// First commit lands at checkpoint offset 1000, as if a worker flushed
	// the batch and then crashed before it could persist the task's
	// checkpoint write.
	require.NoError(t, db.Observations().InsertBatch(ctx, 1000, batch))

	expr, err := selection.Parse("*")
	require.NoError(t, err)
	pred := selection.Compile(expr)
	_, support, err := db.Observations().CountForVariant(ctx, variant.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 1, support)

	// Resume replays the same batch because the task row's checkpoint never
	// advanced past the stale offset; it must be skipped, not re-merged.
	require.NoError(t, db.Observations().InsertBatch(ctx, 1000, batch))

	_, support, err = db.Observations().CountForVariant(ctx, variant.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 1, support, "a replayed batch at an already-applied offset must not double support")

	// A genuinely new batch past the applied offset still applies normally.
	require.NoError(t, db.Observations().InsertBatch(ctx, 2000, []domain.Observation{
		{VariantID: variant.ID, VariationID: variationID, Support: 1, Zygosity: domain.ZygosityHet},
	}))
	_, support, err = db.Observations().CountForVariant(ctx, variant.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 2, support)
}

func TestInsertRegionsBatchSkipsAlreadyAppliedCheckpointOffset(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	sample := setupSample(t, db, ctx, false)
	ds := domain.DataSource{ID: "ds-replay-bed", Digest: "replay-bed", FileType: domain.FileTypeBED, Owner: sample.Owner}
	_, err := db.DataSources().Create(ctx, ds)
	require.NoError(t, err)
	coverageID, err := db.Coverage().CreateRun(ctx, domain.Coverage{SampleID: sample.ID, DataSourceID: ds.ID})
	require.NoError(t, err)

	bin, err := binning.Default.Assign(100, 200)
	require.NoError(t, err)
	batch := []domain.CoveredRegion{
		{CoverageID: coverageID, Chrom: "19", Begin: 100, End: 200, Bin: bin},
	}

	require.NoError(t, db.Coverage().InsertRegionsBatch(ctx, 1000, batch))
	require.NoError(t, db.Coverage().InsertRegionsBatch(ctx, 1000, batch))

	var rowCount int
	require.NoError(t, db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM covered_regions WHERE coverage_id = $1`, coverageID).Scan(&rowCount))
	assert.Equal(t, 1, rowCount, "a replayed batch at an already-applied offset must not duplicate covered_regions rows")
}

func TestLockerSerializesPerSample(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	var counter int
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- db.Locker().WithSampleLock(ctx, "sample-x", func(context.Context) error {
				counter++
				return nil
			})
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, 2, counter)
}

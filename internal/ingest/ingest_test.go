package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"varda/internal/blob"
	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/store"
	"varda/internal/store/sqlstore"
)

func openTest(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupSample(t *testing.T, db *sqlstore.DB, ctx context.Context) domain.Sample {
	t.Helper()
	sm := domain.Sample{Owner: "alice", Name: "s1", PoolSize: 1, CoverageProfile: true, Active: true}
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

func putBlob(t *testing.T, b blob.Store, ctx context.Context, content string) domain.DataSource {
	t.Helper()
	digest, size, err := b.Put(ctx, strings.NewReader(content))
	require.NoError(t, err)
	return domain.DataSource{Digest: digest, Size: size, Owner: "alice"}
}

func registerDataSource(t *testing.T, db *sqlstore.DB, ctx context.Context, ds domain.DataSource) domain.DataSource {
	t.Helper()
	id, err := db.DataSources().Create(ctx, ds)
	require.NoError(t, err)
	ds.ID = id
	return ds
}

func newImporter(t *testing.T, db store.Store) (*Importer, blob.Store) {
	t.Helper()
	dir := t.TempDir()
	b, err := blob.NewFSStore(dir)
	require.NoError(t, err)
	return NewImporter(db, b, Options{BatchSize: 2}), b
}

const vcfHeader = "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\n"

func TestImportVariationMultiAlleleAndGT(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)

	body := vcfHeader +
		"19\t100\t.\tA\tC,G\t.\t.\t.\tGT\t1/1\t2/0\n" +
		"19\t200\t.\tA\tT\t.\t.\t.\tGT\t0/0\t0/1\n"
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeVCF
	ds = registerDataSource(t, db, ctx, ds)

	checkpoint, err := imp.ImportVariation(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, checkpoint.RowsAccepted)
	assert.EqualValues(t, 0, checkpoint.RowsRejected)

	variationID, ok, err := db.Observations().FindVariation(ctx, sample.ID, ds.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, variationID)

	altC, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 100, End: 100, Observed: "C"})
	require.NoError(t, err)
	pred := allSelection(t)
	observed, support, err := db.Observations().CountForVariant(ctx, altC.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 1, observed, "S1 is hom for the C allele, contributing one Observation row")
	assert.Equal(t, 1, support)

	altG, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 100, End: 100, Observed: "G"})
	require.NoError(t, err)
	observedG, supportG, err := db.Observations().CountForVariant(ctx, altG.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 1, observedG, "S2 carries the G allele het against a hom-ref 0 call")
	assert.Equal(t, 1, supportG)

	altTSecondLine, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 200, End: 200, Observed: "T"})
	require.NoError(t, err)
	observedT, _, err := db.Observations().CountForVariant(ctx, altTSecondLine.ID, pred)
	require.NoError(t, err)
	assert.Equal(t, 1, observedT, "S1's 0/0 call at the second record yields no observation, only S2's 0/1 does")
}

func TestImportVariationPLZygosityDropsAmbiguousCalls(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)
	imp.Opts.ZygosityMode = PLZygosity
	imp.Opts.PLQualityThreshold = 20

	body := vcfHeader +
		"19\t300\t.\tA\tT\t.\t.\t.\tGT:PL\t0/1:30,0,40\t0/1:5,4,6\n"
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeVCF
	ds = registerDataSource(t, db, ctx, ds)

	checkpoint, err := imp.ImportVariation(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, checkpoint.RowsAccepted)

	variant, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 300, End: 300, Observed: "T"})
	require.NoError(t, err)
	observed, support, err := db.Observations().CountForVariant(ctx, variant.ID, allSelection(t))
	require.NoError(t, err)
	assert.Equal(t, 1, observed, "only the first column's PL list has a clear best call (gap >= threshold)")
	assert.Equal(t, 1, support)
}

func TestImportVariationPLZygosityMultiAllelicJointGenotype(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)
	imp.Opts.ZygosityMode = PLZygosity
	imp.Opts.PLQualityThreshold = 10

	// Two ALT alleles (T, G): PL carries 6 entries, the Number=G length for
	// a diploid call over 3 possible alleles (ref, T, G) —
	// combinations_with_replacement({0,1,2}, 2) sorted (0,0),(0,1),(1,1),
	// (0,2),(1,2),(2,2) — with the lowest likelihood at the (1,2) slot: both
	// ALT alleles are jointly het-called by one genotype, not recoverable by
	// re-reading a fixed 3-slot hom-ref/het/hom-alt window per allele.
	body := vcfHeader +
		"19\t400\t.\tA\tT,G\t.\t.\t.\tGT:PL\t1/2:50,40,30,35,0,45\n"
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeVCF
	ds = registerDataSource(t, db, ctx, ds)

	checkpoint, err := imp.ImportVariation(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, checkpoint.RowsAccepted)

	variantT, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 400, End: 400, Observed: "T"})
	require.NoError(t, err)
	observedT, supportT, err := db.Observations().CountForVariant(ctx, variantT.ID, allSelection(t))
	require.NoError(t, err)
	assert.Equal(t, 1, observedT, "the (1,2) genotype observes the T allele het")
	assert.Equal(t, 1, supportT)

	variantG, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 400, End: 400, Observed: "G"})
	require.NoError(t, err)
	observedG, supportG, err := db.Observations().CountForVariant(ctx, variantG.ID, allSelection(t))
	require.NoError(t, err)
	assert.Equal(t, 1, observedG, "the same (1,2) genotype jointly observes the G allele het")
	assert.Equal(t, 1, supportG)
}

func TestImportVariationResumeContinuesRatherThanReimporting(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)

	body := vcfHeader +
		"19\t100\t.\tA\tC\t.\t.\t.\tGT\t1/1\t0/0\n" +
		"19\t200\t.\tA\tT\t.\t.\t.\tGT\t0/1\t0/0\n"
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeVCF
	ds = registerDataSource(t, db, ctx, ds)

	firstLineOffset := int64(len(vcfHeader) + len("19\t100\t.\tA\tC\t.\t.\t.\tGT\t1/1\t0/0\n"))
	partial := domain.Checkpoint{ByteOffset: firstLineOffset, RowsAccepted: 1}

	checkpoint, err := imp.ImportVariation(ctx, ds, sample.ID, partial, nil)
	require.NoError(t, err, "a nonzero resume offset must not trip the DuplicateImport guard")
	assert.EqualValues(t, 2, checkpoint.RowsAccepted, "resume continues the running accepted counter rather than restarting it")

	variantC, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 100, End: 100, Observed: "C"})
	require.NoError(t, err)
	observedC, _, err := db.Observations().CountForVariant(ctx, variantC.ID, allSelection(t))
	require.NoError(t, err)
	assert.Equal(t, 0, observedC, "the first record was skipped by the resume offset, so it was never (re)inserted")
}

func TestImportVariationResumeDoesNotDoubleCountAlreadyCommittedBatch(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db) // BatchSize: 2, so the 4 lines below flush as two batches

	line1 := "19\t100\t.\tA\tC\t.\t.\t.\tGT\t1/1\t0/0\n"
	line2 := "19\t200\t.\tA\tT\t.\t.\t.\tGT\t1/1\t0/0\n"
	line3 := "19\t300\t.\tA\tG\t.\t.\t.\tGT\t1/1\t0/0\n"
	line4 := "19\t400\t.\tA\tC\t.\t.\t.\tGT\t1/1\t0/0\n"
	body := vcfHeader + line1 + line2 + line3 + line4
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeVCF
	ds = registerDataSource(t, db, ctx, ds)

	checkpoint, err := imp.ImportVariation(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4, checkpoint.RowsAccepted, "an uninterrupted run commits both batches")

	// Simulate a worker crash between the second batch's commit and the
	// task row's checkpoint write: the task row's last-acked checkpoint is
	// stale, still pointing at the end of batch one, even though batch two
	// already landed in observations above.
	staleResume := domain.Checkpoint{ByteOffset: int64(len(vcfHeader) + len(line1) + len(line2)), RowsAccepted: 2}

	_, err = imp.ImportVariation(ctx, ds, sample.ID, staleResume, nil)
	require.NoError(t, err, "a nonzero resume offset must not trip the DuplicateImport guard")

	variantAtLine3, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 300, End: 300, Observed: "G"})
	require.NoError(t, err)
	_, supportLine3, err := db.Observations().CountForVariant(ctx, variantAtLine3.ID, allSelection(t))
	require.NoError(t, err)
	assert.Equal(t, 1, supportLine3, "replaying the already-committed second batch on resume must not double its support")

	variantAtLine4, _, err := db.Variants().GetOrCreate(ctx, domain.Variant{Chrom: "19", Begin: 400, End: 400, Observed: "C"})
	require.NoError(t, err)
	_, supportLine4, err := db.Observations().CountForVariant(ctx, variantAtLine4.ID, allSelection(t))
	require.NoError(t, err)
	assert.Equal(t, 1, supportLine4)
}

func TestImportVariationRejectsDuplicateImport(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)

	body := vcfHeader + "19\t100\t.\tA\tC\t.\t.\t.\tGT\t1/1\n"
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeVCF
	ds = registerDataSource(t, db, ctx, ds)

	_, err := imp.ImportVariation(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)

	_, err = imp.ImportVariation(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.Error(t, err, "a second zero-offset import of the same sample/data-source pair must be rejected")
}

func TestImportCoverageMergesAdjacentAndOverlappingRegions(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)

	body := "19\t99\t150\n" + // zero-based [99,150) -> one-based [100,150]
		"19\t150\t200\n" + // adjacent, merges into [100,200]
		"19\t500\t600\n" // separate region
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeBED
	ds = registerDataSource(t, db, ctx, ds)

	checkpoint, err := imp.ImportCoverage(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, checkpoint.RowsAccepted)

	pred := allSelection(t)
	inMerged, err := db.Coverage().CountCovering(ctx, "19", 175, imp.Opts.Scheme.Overlapping(174, 175), pred)
	require.NoError(t, err)
	assert.Equal(t, 1, inMerged, "175 falls inside the merged [100,200] region")

	inSecond, err := db.Coverage().CountCovering(ctx, "19", 550, imp.Opts.Scheme.Overlapping(549, 550), pred)
	require.NoError(t, err)
	assert.Equal(t, 1, inSecond)

	outside, err := db.Coverage().CountCovering(ctx, "19", 300, imp.Opts.Scheme.Overlapping(299, 300), pred)
	require.NoError(t, err)
	assert.Equal(t, 0, outside, "the gap between the merged region and the second region is not covered")
}

func TestImportCoverageRejectsDuplicateImport(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	sample := setupSample(t, db, ctx)
	imp, b := newImporter(t, db)

	body := "19\t99\t150\n"
	ds := putBlob(t, b, ctx, body)
	ds.FileType = domain.FileTypeBED
	ds = registerDataSource(t, db, ctx, ds)

	_, err := imp.ImportCoverage(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.NoError(t, err)

	_, err = imp.ImportCoverage(ctx, ds, sample.ID, domain.Checkpoint{}, nil)
	require.Error(t, err)
}

func allSelection(t *testing.T) selection.Predicate {
	t.Helper()
	expr, err := selection.Parse("*")
	require.NoError(t, err)
	return selection.Compile(expr)
}

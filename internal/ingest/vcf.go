package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"varda/internal/domain"
	"varda/internal/normalize"
	"varda/internal/verr"
)

const scannerMaxLine = 8 << 20 // 8MB, matching svync's readPlain buffer size

type observationBatch struct {
	rows     []domain.Observation
	progress domain.Checkpoint
}

// ImportVariation streams a VCF through normalization and binning,
// flattening every genotype column into the single target sample (pooling
// semantics: a multi-sample VCF column set all pools into one sampleID),
// and flushes accumulated Observations in batches of Opts.BatchSize. resume
// resumes a previously checkpointed import by fast-forwarding the scanner
// past resume.ByteOffset bytes of the decompressed stream, since neither a
// bgzf.Reader nor a plain file guarantees cheap seeking mid-stream.
func (imp *Importer) ImportVariation(ctx context.Context, ds domain.DataSource, sampleID string, resume domain.Checkpoint, onCheckpoint CheckpointFunc) (domain.Checkpoint, error) {
	variationID, dup, err := imp.Store.Observations().FindVariation(ctx, sampleID, ds.ID)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if dup && resume.ByteOffset == 0 {
		return domain.Checkpoint{}, verr.New(verr.IntegrityConflict, "ingest: sample %s already has variation %s for data source %s (DuplicateImport)", sampleID, variationID, ds.ID)
	}
	if !dup {
		variationID, err = imp.Store.Observations().CreateVariation(ctx, domain.Variation{SampleID: sampleID, DataSourceID: ds.ID})
		if err != nil {
			return domain.Checkpoint{}, err
		}
	}

	rc, err := imp.Blob.Open(ctx, ds.Digest)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	defer rc.Close()

	r, closer, err := decompress(rc, ds.Gzipped)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if closer != nil {
		defer closer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan observationBatch, imp.Opts.ChannelDepth)

	g.Go(func() error {
		defer close(batches)
		return imp.scanVCF(gctx, r, variationID, resume, batches)
	})

	var final domain.Checkpoint
	g.Go(func() error {
		for b := range batches {
			if len(b.rows) > 0 {
				if err := imp.Store.Observations().InsertBatch(gctx, b.progress.ByteOffset, b.rows); err != nil {
					return err
				}
			}
			final = b.progress
			if onCheckpoint != nil {
				if err := onCheckpoint(gctx, final); err != nil {
					return err
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return final, err
	}
	return final, nil
}

func (imp *Importer) scanVCF(ctx context.Context, r io.Reader, variationID string, resume domain.Checkpoint, out chan<- observationBatch) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxLine)

	var (
		byteOffset         int64
		accepted, rejected = resume.RowsAccepted, resume.RowsRejected
		// A nonzero resume offset means the header necessarily appeared
		// before the checkpoint: the resume-skip below fires before the
		// "#CHROM" check ever runs for those bytes, so headerSeen would
		// otherwise never get set and every post-resume line would be
		// dropped as pre-header.
		headerSeen   = resume.ByteOffset > 0
		variantCache = map[string]string{}
		current      observationBatch
	)

	flush := func() error {
		if len(current.rows) == 0 && current.progress.ByteOffset == 0 {
			return nil
		}
		select {
		case out <- current:
		case <-ctx.Done():
			return ctx.Err()
		}
		current = observationBatch{}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		byteOffset += int64(len(line)) + 1
		if byteOffset <= resume.ByteOffset {
			continue
		}
		if strings.HasPrefix(line, "##") {
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			// Genotype column names aren't needed: every genotype column
			// pools into the one target sampleID, so the header is only a
			// signal that data follows.
			headerSeen = true
			continue
		}
		if !headerSeen || line == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 10 {
			rejected++
			continue
		}

		rows, ok := imp.parseVCFRecord(ctx, cols, variationID, variantCache)
		if !ok {
			rejected++
			continue
		}
		accepted++
		current.rows = append(current.rows, rows...)
		current.progress = domain.Checkpoint{ByteOffset: byteOffset, RowsAccepted: accepted, RowsRejected: rejected}
		if len(current.rows) >= imp.Opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return verr.Wrap(verr.Internal, err, "ingest: scan vcf")
	}
	current.progress = domain.Checkpoint{ByteOffset: byteOffset, RowsAccepted: accepted, RowsRejected: rejected}
	return flush()
}

// parseVCFRecord parses one data line into zero or more Observation rows
// (one per genotype column where the allele is present), mirroring
// ProcessVcf's per-column GT/PL dispatch. ok is false when the record
// yields no Observation at all: malformed columns, every allele
// unresolvable, or no genotype column carrying any ALT allele.
func (imp *Importer) parseVCFRecord(ctx context.Context, cols []string, variationID string, cache map[string]string) ([]domain.Observation, bool) {
	chrom := strings.TrimPrefix(cols[0], "chr")
	if imp.Opts.Oracle != nil {
		if canon, ok := imp.Opts.Oracle.Canonicalize(chrom); ok {
			chrom = canon
		}
	}
	pos, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return nil, false
	}
	ref := cols[3]
	alts := strings.Split(cols[4], ",")
	formatFields := strings.Split(cols[8], ":")
	gtIdx, plIdx := -1, -1
	for i, k := range formatFields {
		switch k {
		case "GT":
			gtIdx = i
		case "PL":
			plIdx = i
		}
	}
	genotypeCols := cols[9:]

	// Each column's called alleles are resolved once per record rather than
	// once per allele: in PL mode the genotype-index lookup depends on the
	// record's full ALT count (and therefore covers every allele jointly),
	// not on whichever allele happens to be under consideration.
	calls := make([][]int, len(genotypeCols))
	for i, gtCol := range genotypeCols {
		calls[i] = imp.resolveCall(strings.Split(gtCol, ":"), gtIdx, plIdx, len(alts))
	}

	var observations []domain.Observation
	anyAccepted := false

	for alleleIdx, alt := range alts {
		alt = strings.TrimSpace(alt)
		if alt == "" || alt == "." || strings.HasPrefix(alt, "<") {
			continue // missing or symbolic ALT (e.g. <DEL>) is out of scope
		}

		result := normalize.Normalize(chrom, pos, ref, alt)
		if imp.Opts.Oracle != nil {
			verified, verr2 := normalize.Verify(imp.Opts.Oracle, chrom, pos, ref, imp.Opts.MismatchPolicy)
			if verr2 != nil || !verified {
				continue
			}
		}

		key := fmt.Sprintf("%s\x00%d\x00%d\x00%s", result.Chrom, result.Begin, result.End, result.Observed)
		variantID, cached := cache[key]
		if !cached {
			bin, err := assignBin(imp.Opts.Scheme, result.Begin, result.End)
			if err != nil {
				continue
			}
			v := domain.Variant{Chrom: result.Chrom, Begin: result.Begin, End: result.End, Observed: result.Observed, Bin: bin, Class: result.Class}
			created, _, err := imp.Store.Variants().GetOrCreate(ctx, v)
			if err != nil {
				continue
			}
			variantID = created.ID
			cache[key] = variantID
		}

		alleleNumber := alleleIdx + 1
		recordHadObservation := false
		for _, call := range calls {
			zyg, present := zygosityForAllele(call, alleleNumber)
			if !present {
				continue
			}
			observations = append(observations, domain.Observation{
				VariantID: variantID, VariationID: variationID, Support: 1, Zygosity: zyg,
			})
			recordHadObservation = true
		}
		if recordHadObservation {
			anyAccepted = true
		}
	}

	return observations, anyAccepted
}

// resolveCall resolves one genotype column to its called alleles (allele
// index 0 is reference, 1..numAlts are ALT alleles in order), or nil when
// the column has no usable call. In GT mode (and as the PL-mode fallback
// when PL doesn't resolve) it reads the GT field directly. In PL mode it
// picks the PL-minimizing genotype from the full combinatorial genotype
// list for the record's ALT count and ploidy, covering multi-ALT records
// jointly rather than evaluating each ALT against ref in isolation.
func (imp *Importer) resolveCall(fields []string, gtIdx, plIdx, numAlts int) []int {
	if imp.Opts.ZygosityMode == PLZygosity && plIdx >= 0 && plIdx < len(fields) {
		ploidy := ploidyFromGT(fields, gtIdx)
		return genotypeFromPL(fields[plIdx], numAlts, ploidy, imp.Opts.PLQualityThreshold)
	}
	if gtIdx < 0 || gtIdx >= len(fields) {
		return nil
	}
	return genotypeFromGT(fields[gtIdx])
}

// ploidyFromGT mirrors read_genotype's "get ploidy from GT, default to
// diploid": PL's Number=G length depends on ploidy, and the column's own GT
// field (when present alongside PL) is the authoritative source for it.
func ploidyFromGT(fields []string, gtIdx int) int {
	if gtIdx < 0 || gtIdx >= len(fields) {
		return 2
	}
	if calls := genotypeFromGT(fields[gtIdx]); calls != nil {
		return len(calls)
	}
	return 2
}

// genotypeFromGT derives called alleles from a GT field ("0/1", "1|1", "1"
// for haploid calls). A missing allele (".") is kept as -1 so a partially
// missing call (e.g. "0/.") still counts its valid alleles rather than
// being discarded outright.
func genotypeFromGT(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "." {
		return nil
	}
	sep := "/"
	if strings.Contains(raw, "|") {
		sep = "|"
	}
	parts := strings.Split(raw, sep)
	calls := make([]int, len(parts))
	for i, p := range parts {
		if p == "." {
			calls[i] = -1
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		calls[i] = n
	}
	return calls
}

// genotypeFromPL picks the PL-minimizing genotype for a Number=G
// phred-scaled likelihood list, mirroring read_genotype: the genotype space
// is every length-ploidy combination with replacement of allele indices
// 0..numAlts, ordered to match the VCF PL/GL field's colex convention
// (vcfGenotypes), and the genotype at the lowest-PL index (ties broken by
// the lower index) is the call. nil is returned when the field doesn't
// have the expected Number=G length for this ploidy/ALT count, or when the
// gap between the best and second-best likelihood is below threshold.
func genotypeFromPL(raw string, numAlts, ploidy int, threshold float64) []int {
	parts := strings.Split(raw, ",")
	genotypes := vcfGenotypes(numAlts, ploidy)
	if len(parts) != len(genotypes) {
		return nil
	}
	best, secondBest, bestIdx := math.Inf(1), math.Inf(1), -1
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil
		}
		if v < best {
			secondBest = best
			best = v
			bestIdx = i
		} else if v < secondBest {
			secondBest = v
		}
	}
	if bestIdx < 0 || secondBest-best < threshold {
		return nil
	}
	return genotypes[bestIdx]
}

// vcfGenotypes returns every length-ploidy combination with replacement of
// allele indices 0..numAlts (0 is reference), ordered the way
// itertools.combinations_with_replacement(range(numAlts+1), ploidy) comes
// out once sorted by its reversed tuple — the same order a Number=G PL/GL
// field enumerates genotypes in.
func vcfGenotypes(numAlts, ploidy int) [][]int {
	var combos [][]int
	var build func(start int, cur []int)
	build = func(start int, cur []int) {
		if len(cur) == ploidy {
			combos = append(combos, append([]int{}, cur...))
			return
		}
		for a := start; a <= numAlts; a++ {
			build(a, append(cur, a))
		}
	}
	build(0, nil)
	sort.Slice(combos, func(i, j int) bool {
		a, b := combos[i], combos[j]
		for k := len(a) - 1; k >= 0; k-- {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return combos
}

// zygosityForAllele derives one allele's zygosity from a resolved call
// (genotypeFromGT/genotypeFromPL's allele-index list): absent entirely when
// alleleNumber never appears, Het when it appears but not in every slot,
// Hom when it fills every slot.
func zygosityForAllele(calls []int, alleleNumber int) (domain.Zygosity, bool) {
	if len(calls) == 0 {
		return "", false
	}
	matches, validCalls := 0, 0
	for _, c := range calls {
		if c == -1 {
			continue
		}
		validCalls++
		if c == alleleNumber {
			matches++
		}
	}
	if validCalls == 0 || matches == 0 {
		return "", false
	}
	if matches == len(calls) {
		return domain.ZygosityHom, true
	}
	return domain.ZygosityHet, true
}

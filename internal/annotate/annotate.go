// Package annotate implements the annotation pipeline: rewriting a VCF
// stream line by line, appending per-query frequency fields to every
// record's INFO column and writing the result through the blob facade as a
// new DataSource.
package annotate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"varda/internal/binning"
	"varda/internal/blob"
	"varda/internal/domain"
	"varda/internal/frequency"
	"varda/internal/normalize"
	"varda/internal/reference"
	"varda/internal/selection"
	"varda/internal/store"
	"varda/internal/verr"
)

const scannerMaxLine = 8 << 20

// Options configures one Annotator.
type Options struct {
	BatchSize      int // how many accepted records between checkpoint callbacks
	ChannelDepth   int
	MismatchPolicy normalize.ReferenceMismatchPolicy
	Oracle         reference.Oracle
	Scheme         binning.Scheme
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 5000
	}
	if o.ChannelDepth <= 0 {
		o.ChannelDepth = 4
	}
	if o.Scheme == (binning.Scheme{}) {
		o.Scheme = binning.Default
	}
}

// Annotator rewrites a VCF, appending <slug>_OBS/_COV/_FREQ to every
// record's INFO column for each configured query.
type Annotator struct {
	Store store.Store
	Blob  blob.Store
	Freq  *frequency.Engine
	Opts  Options
}

// NewAnnotator wires an Annotator, applying Options defaults.
func NewAnnotator(s store.Store, b blob.Store, opts Options) *Annotator {
	opts.setDefaults()
	return &Annotator{Store: s, Blob: b, Freq: frequency.New(s), Opts: opts}
}

// CheckpointFunc is invoked periodically with progress counters, the same
// contract as ingest.CheckpointFunc.
type CheckpointFunc func(ctx context.Context, checkpoint domain.Checkpoint) error

type compiledQuery struct {
	Slug string
	Expr *selection.Expr
}

// compileQueries parses every query and, when excludeSampleIDs is
// non-empty, conjoins a `not sample:<id>` clause per excluded id onto each
// parsed expression: a sample whose own import is the file being annotated
// must not inflate the frequencies computed against it.
func compileQueries(queries []domain.NamedQuery, excludeSampleIDs []string) ([]compiledQuery, error) {
	compiled := make([]compiledQuery, len(queries))
	for i, q := range queries {
		expr, err := selection.Parse(q.Expression)
		if err != nil {
			return nil, verr.Wrap(verr.BadRequest, err, "annotate: parse query %q", q.Slug)
		}
		compiled[i] = compiledQuery{Slug: q.Slug, Expr: excludeSamples(expr, excludeSampleIDs)}
	}
	return compiled, nil
}

// excludeSamples conjoins `not sample:<id>` onto expr for every id in
// excludeSampleIDs, left-associatively, the same way the original
// annotation resource builds `expressions.make_conjunction`.
func excludeSamples(expr *selection.Expr, excludeSampleIDs []string) *selection.Expr {
	for _, id := range excludeSampleIDs {
		not := &selection.Expr{Kind: selection.KindNot, Children: []*selection.Expr{
			{Kind: selection.KindSample, ID: id},
		}}
		expr = &selection.Expr{Kind: selection.KindAnd, Children: []*selection.Expr{expr, not}}
	}
	return expr
}

// Annotate streams original end to end exactly once: unlike ingestion's
// batch-insert resume, the rewritten VCF is a single content-addressed blob
// written in one pass, so there is no partial output to resume into. A
// retried task simply reprocesses the whole stream; every store write along
// the way (Variants().GetOrCreate, the final DataSources().Create) is
// either idempotent or produces a fresh row, so a retry is safe without a
// byte-offset skip on the input side.
func (a *Annotator) Annotate(ctx context.Context, ann domain.Annotation, original domain.DataSource, onCheckpoint CheckpointFunc) (domain.Checkpoint, domain.DataSource, error) {
	excludeSampleIDs, err := a.Store.Observations().SamplesWithVariation(ctx, original.ID)
	if err != nil {
		return domain.Checkpoint{}, domain.DataSource{}, err
	}
	queries, err := compileQueries(ann.Queries, excludeSampleIDs)
	if err != nil {
		return domain.Checkpoint{}, domain.DataSource{}, err
	}

	rc, err := a.Blob.Open(ctx, original.Digest)
	if err != nil {
		return domain.Checkpoint{}, domain.DataSource{}, err
	}
	defer rc.Close()

	r, closer, err := decompress(rc, original.Gzipped)
	if err != nil {
		return domain.Checkpoint{}, domain.DataSource{}, err
	}
	if closer != nil {
		defer closer.Close()
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var final domain.Checkpoint
	g.Go(func() error {
		progress, rerr := a.rewrite(gctx, r, pw, queries, onCheckpoint)
		final = progress
		pw.CloseWithError(rerr)
		return rerr
	})

	var digest string
	var size int64
	g.Go(func() error {
		d, n, perr := a.Blob.Put(gctx, pr)
		digest, size = d, n
		return perr
	})

	if err := g.Wait(); err != nil {
		return final, domain.DataSource{}, err
	}

	out := domain.DataSource{Digest: digest, Size: size, Owner: original.Owner, FileType: original.FileType}
	id, err := a.Store.DataSources().Create(ctx, out)
	if err != nil {
		return final, domain.DataSource{}, err
	}
	out.ID = id

	if err := a.Store.Annotations().SetAnnotatedDataSource(ctx, ann.ID, out.ID); err != nil {
		return final, out, err
	}
	return final, out, nil
}

func (a *Annotator) rewrite(ctx context.Context, r io.Reader, w io.Writer, queries []compiledQuery, onCheckpoint CheckpointFunc) (domain.Checkpoint, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxLine)
	bw := bufio.NewWriterSize(w, 64*1024)

	var (
		byteOffset         int64
		accepted, rejected int64
		headerWritten      bool
	)

	report := func(cp domain.Checkpoint) error {
		if onCheckpoint == nil {
			return nil
		}
		return onCheckpoint(ctx, cp)
	}

	for scanner.Scan() {
		line := scanner.Text()
		byteOffset += int64(len(line)) + 1

		if !headerWritten && strings.HasPrefix(line, "#CHROM") {
			for _, q := range queries {
				for _, field := range infoFieldDescriptors(q.Slug) {
					if _, err := bw.WriteString(field + "\n"); err != nil {
						return domain.Checkpoint{}, verr.Wrap(verr.Internal, err, "annotate: write info header")
					}
				}
			}
			headerWritten = true
		}

		if strings.HasPrefix(line, "#") {
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return domain.Checkpoint{}, verr.Wrap(verr.Internal, err, "annotate: write header line")
			}
			continue
		}
		if line == "" {
			continue
		}

		rewritten, ok := a.rewriteRecord(ctx, line, queries)
		if !ok {
			rejected++
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return domain.Checkpoint{}, verr.Wrap(verr.Internal, err, "annotate: write unrewritten line")
			}
			continue
		}
		accepted++
		if _, err := bw.WriteString(rewritten + "\n"); err != nil {
			return domain.Checkpoint{}, verr.Wrap(verr.Internal, err, "annotate: write record")
		}

		if accepted%int64(a.Opts.BatchSize) == 0 {
			if err := report(domain.Checkpoint{ByteOffset: byteOffset, RowsAccepted: accepted, RowsRejected: rejected}); err != nil {
				return domain.Checkpoint{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Checkpoint{}, verr.Wrap(verr.Internal, err, "annotate: scan vcf")
	}
	if err := bw.Flush(); err != nil {
		return domain.Checkpoint{}, verr.Wrap(verr.Internal, err, "annotate: flush output")
	}
	final := domain.Checkpoint{ByteOffset: byteOffset, RowsAccepted: accepted, RowsRejected: rejected}
	if err := report(final); err != nil {
		return final, err
	}
	return final, nil
}

func infoFieldDescriptors(slug string) []string {
	return []string{
		fmt.Sprintf(`##INFO=<ID=%s_OBS,Number=A,Type=Integer,Description="Observed allele count for query %s">`, slug, slug),
		fmt.Sprintf(`##INFO=<ID=%s_COV,Number=A,Type=Integer,Description="Covered pool size for query %s">`, slug, slug),
		fmt.Sprintf(`##INFO=<ID=%s_FREQ,Number=A,Type=Float,Description="Observed/covered frequency for query %s">`, slug, slug),
	}
}

// rewriteRecord appends <slug>_OBS/_COV/_FREQ to one VCF data line's INFO
// column, one comma-separated value per ALT allele (the Number=A
// convention declared in infoFieldDescriptors). A missing or unresolvable
// allele contributes "." to every field at its position rather than
// dropping the whole record. ok is false only when the line itself is too
// malformed to parse (column count, unparseable POS).
func (a *Annotator) rewriteRecord(ctx context.Context, line string, queries []compiledQuery) (string, bool) {
	cols := strings.Split(line, "\t")
	if len(cols) < 8 {
		return "", false
	}
	chrom := strings.TrimPrefix(cols[0], "chr")
	if a.Opts.Oracle != nil {
		if canon, ok := a.Opts.Oracle.Canonicalize(chrom); ok {
			chrom = canon
		}
	}
	pos, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return "", false
	}
	ref := cols[3]
	alts := strings.Split(cols[4], ",")

	// values[qi][0/1/2][alleleIdx] holds the OBS/COV/FREQ string for one
	// query at one allele position.
	values := make([][3][]string, len(queries))
	for qi := range queries {
		for k := 0; k < 3; k++ {
			values[qi][k] = make([]string, len(alts))
			for i := range values[qi][k] {
				values[qi][k][i] = "."
			}
		}
	}

	for alleleIdx, alt := range alts {
		variant, haveVariant := a.resolveVariant(ctx, chrom, pos, ref, strings.TrimSpace(alt))
		if !haveVariant {
			continue
		}
		for qi, q := range queries {
			result, err := a.Freq.Frequency(ctx, variant, q.Expr)
			if err != nil {
				continue
			}
			values[qi][0][alleleIdx] = strconv.Itoa(result.Observed)
			values[qi][1][alleleIdx] = strconv.Itoa(result.Covered)
			if ratio, ok := result.Ratio(); ok {
				values[qi][2][alleleIdx] = strconv.FormatFloat(ratio, 'f', 6, 64)
			}
		}
	}

	var extra []string
	for qi, q := range queries {
		extra = append(extra,
			fmt.Sprintf("%s_OBS=%s", q.Slug, strings.Join(values[qi][0], ",")),
			fmt.Sprintf("%s_COV=%s", q.Slug, strings.Join(values[qi][1], ",")),
			fmt.Sprintf("%s_FREQ=%s", q.Slug, strings.Join(values[qi][2], ",")),
		)
	}
	info := cols[7]
	if info == "." || info == "" {
		info = strings.Join(extra, ";")
	} else {
		info = info + ";" + strings.Join(extra, ";")
	}
	cols[7] = info
	return strings.Join(cols, "\t"), true
}

// resolveVariant normalizes one allele call and resolves it to a stored
// Variant, the same GetOrCreate path internal/ingest uses so an annotated
// variant never before observed still gets a durable identity (and
// contributes a defined, if zero, frequency on subsequent queries) rather
// than being skipped.
func (a *Annotator) resolveVariant(ctx context.Context, chrom string, pos int64, ref, alt string) (domain.Variant, bool) {
	if alt == "" || alt == "." || strings.HasPrefix(alt, "<") {
		return domain.Variant{}, false
	}
	if a.Opts.Oracle != nil {
		verified, err := normalize.Verify(a.Opts.Oracle, chrom, pos, ref, a.Opts.MismatchPolicy)
		if err != nil || !verified {
			return domain.Variant{}, false
		}
	}
	result := normalize.Normalize(chrom, pos, ref, alt)
	bin, err := a.assignBin(result.Begin, result.End)
	if err != nil {
		return domain.Variant{}, false
	}
	v := domain.Variant{Chrom: result.Chrom, Begin: result.Begin, End: result.End, Observed: result.Observed, Bin: bin, Class: result.Class}
	created, _, err := a.Store.Variants().GetOrCreate(ctx, v)
	if err != nil {
		return domain.Variant{}, false
	}
	return created, true
}

// assignBin mirrors ingest.assignBin: the one-based-to-zero-based
// conversion and zero-width insertion anchor, duplicated rather than
// imported since the two pipelines are otherwise independent.
func (a *Annotator) assignBin(begin, end int64) (binning.Bin, error) {
	zeroBegin := begin - 1
	zeroEnd := end
	if zeroEnd <= zeroBegin {
		zeroEnd = zeroBegin + 1
	}
	bin, err := a.Opts.Scheme.Assign(zeroBegin, zeroEnd)
	if err != nil {
		return 0, verr.Wrap(verr.BadRequest, err, "annotate: assign bin for [%d, %d]", begin, end)
	}
	return bin, nil
}

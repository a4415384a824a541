package ingest

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"varda/internal/domain"
	"varda/internal/verr"
)

type coverageBatch struct {
	rows     []domain.CoveredRegion
	progress domain.Checkpoint
}

// ImportCoverage streams a BED file, converting each zero-based half-open
// row to the one-based closed convention domain.CoveredRegion stores
// (begin = bedStart+1, end = bedEnd), merging adjacent-or-overlapping rows
// on the same chromosome within the stream before binning and batching
// them the same way ImportVariation batches observations.
func (imp *Importer) ImportCoverage(ctx context.Context, ds domain.DataSource, sampleID string, resume domain.Checkpoint, onCheckpoint CheckpointFunc) (domain.Checkpoint, error) {
	coverageID, dup, err := imp.Store.Coverage().FindRun(ctx, sampleID, ds.ID)
	if err != nil {
		return domain.Checkpoint{}, err
	}
	if dup && resume.ByteOffset == 0 {
		return domain.Checkpoint{}, verr.New(verr.IntegrityConflict, "ingest: sample %s already has coverage run %s for data source %s (DuplicateImport)", sampleID, coverageID, ds.ID)
	}
	if !dup {
		coverageID, err = imp.Store.Coverage().CreateRun(ctx, domain.Coverage{SampleID: sampleID, DataSourceID: ds.ID})
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
	batches := make(chan coverageBatch, imp.Opts.ChannelDepth)

	g.Go(func() error {
		defer close(batches)
		return imp.scanBED(gctx, r, coverageID, resume, batches)
	})

	var final domain.Checkpoint
	g.Go(func() error {
		for b := range batches {
			if len(b.rows) > 0 {
				if err := imp.Store.Coverage().InsertRegionsBatch(gctx, b.progress.ByteOffset, b.rows); err != nil {
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

func (imp *Importer) scanBED(ctx context.Context, r io.Reader, coverageID string, resume domain.Checkpoint, out chan<- coverageBatch) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerMaxLine)

	var (
		byteOffset         int64
		accepted, rejected = resume.RowsAccepted, resume.RowsRejected
		current            coverageBatch
		pending            *domain.CoveredRegion // open merge run, flushed on chrom change or non-adjacency
	)

	appendRow := func(r domain.CoveredRegion) error {
		bin, err := assignBin(imp.Opts.Scheme, r.Begin, r.End)
		if err != nil {
			rejected++
			return nil
		}
		r.Bin = bin
		current.rows = append(current.rows, r)
		if len(current.rows) >= imp.Opts.BatchSize {
			return flushBatch(ctx, out, &current)
		}
		return nil
	}

	closePending := func() error {
		if pending == nil {
			return nil
		}
		r := *pending
		pending = nil
		return appendRow(r)
	}

	for scanner.Scan() {
		line := scanner.Text()
		byteOffset += int64(len(line)) + 1
		if byteOffset <= resume.ByteOffset {
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 3 {
			rejected++
			continue
		}
		zeroStart, err1 := strconv.ParseInt(cols[1], 10, 64)
		zeroEnd, err2 := strconv.ParseInt(cols[2], 10, 64)
		if err1 != nil || err2 != nil || zeroEnd <= zeroStart {
			rejected++
			continue
		}
		region := domain.CoveredRegion{CoverageID: coverageID, Chrom: cols[0], Begin: zeroStart + 1, End: zeroEnd}

		switch {
		case pending == nil:
			pending = &region
		case pending.Chrom == region.Chrom && region.Begin <= pending.End+1:
			if region.End > pending.End {
				pending.End = region.End
			}
		default:
			if err := closePending(); err != nil {
				return err
			}
			pending = &region
		}
		accepted++
		current.progress = domain.Checkpoint{ByteOffset: byteOffset, RowsAccepted: accepted, RowsRejected: rejected}
	}
	if err := scanner.Err(); err != nil {
		return verr.Wrap(verr.Internal, err, "ingest: scan bed")
	}
	if err := closePending(); err != nil {
		return err
	}
	current.progress = domain.Checkpoint{ByteOffset: byteOffset, RowsAccepted: accepted, RowsRejected: rejected}
	return flushBatch(ctx, out, &current)
}

func flushBatch(ctx context.Context, out chan<- coverageBatch, b *coverageBatch) error {
	if len(b.rows) == 0 && b.progress.ByteOffset == 0 {
		return nil
	}
	select {
	case out <- *b:
	case <-ctx.Done():
		return ctx.Err()
	}
	*b = coverageBatch{}
	return nil
}

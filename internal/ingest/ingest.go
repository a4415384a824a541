// Package ingest implements the ingestion pipeline: streaming VCF
// (variation) and BED (coverage) readers that normalize each record,
// resolve it against the binning and store layers, and batch-flush the
// result through a bounded channel, the way gohan's services/ingestion.go
// processes a VCF file with a goroutine-bounded line queue and periodic
// checkpointing.
package ingest

import (
	"context"

	"varda/internal/binning"
	"varda/internal/blob"
	"varda/internal/domain"
	"varda/internal/normalize"
	"varda/internal/reference"
	"varda/internal/store"
	"varda/internal/verr"
)

// ZygosityMode selects how a genotype column's zygosity is derived,
// grounded on the ploidy/zygosity switch in gohan's services/ingestion.go.
type ZygosityMode string

const (
	GTZygosity ZygosityMode = "GT"
	PLZygosity ZygosityMode = "PL"
)

// Options configures one Importer.
type Options struct {
	BatchSize int // default 5000
	// ChannelDepth bounds the producer/consumer batch channel, the
	// equivalent of gohan's IngestionBulkIndexingQueue buffer size.
	ChannelDepth int
	ZygosityMode ZygosityMode
	// PLQualityThreshold drops a PL-mode call when the gap between the best
	// and second-best genotype likelihood is below this value (ambiguous
	// call).
	PLQualityThreshold float64
	MismatchPolicy     normalize.ReferenceMismatchPolicy
	Oracle             reference.Oracle // nil skips reference verification
	Scheme             binning.Scheme
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 5000
	}
	if o.ChannelDepth <= 0 {
		o.ChannelDepth = 4
	}
	if o.ZygosityMode == "" {
		o.ZygosityMode = GTZygosity
	}
	if o.PLQualityThreshold <= 0 {
		o.PLQualityThreshold = 20 // phred-scale gap, a conservative default
	}
	if o.Scheme == (binning.Scheme{}) {
		o.Scheme = binning.Default
	}
}

// Importer runs variation and coverage imports against a Store and a blob
// Store, sharing the same batching/checkpointing machinery for both.
type Importer struct {
	Store store.Store
	Blob  blob.Store
	Opts  Options
}

// NewImporter wires an Importer, applying Options defaults.
func NewImporter(s store.Store, b blob.Store, opts Options) *Importer {
	opts.setDefaults()
	return &Importer{Store: s, Blob: b, Opts: opts}
}

// CheckpointFunc is invoked after each batch flush so the caller (C9's task
// manager) can persist progress against the owning Task.
type CheckpointFunc func(ctx context.Context, checkpoint domain.Checkpoint) error

// Progress computes a floor(100 * bytes_consumed / bytes_total) progress
// percentage. For a gzipped source, byte_offset counts
// decompressed bytes while totalBytes is the compressed blob size, so the
// result is a monotonic but approximate proxy rather than an exact
// percentage; callers display it as "in progress" rather than relying on
// its precision for compressed sources.
func Progress(checkpoint domain.Checkpoint, totalBytes int64) float64 {
	if totalBytes <= 0 {
		return 0
	}
	pct := 100 * float64(checkpoint.ByteOffset) / float64(totalBytes)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return float64(int64(pct))
}

// assignBin computes the C1 bin for a one-based inclusive [begin, end]
// interval, applying the begin-1/end zero-based-half-open conversion used
// throughout this module. A pure insertion (end == begin-1, zero width) is
// anchored to a single base at begin, the smallest interval the scheme can
// bin, since an insertion has no footprint of its own to bound a query by.
func assignBin(scheme binning.Scheme, begin, end int64) (binning.Bin, error) {
	zeroBegin := begin - 1
	zeroEnd := end
	if zeroEnd <= zeroBegin {
		zeroEnd = zeroBegin + 1
	}
	bin, err := scheme.Assign(zeroBegin, zeroEnd)
	if err != nil {
		return 0, verr.Wrap(verr.BadRequest, err, "ingest: assign bin for [%d, %d]", begin, end)
	}
	return bin, nil
}

// Package frequency implements the frequency engine: for a Variant v and a
// sample-selection expression s, computes (observed, covered,
// totalSupport), submitting a single bin-restricted query per count the
// way internal/store's sub-stores already fold the selection predicate
// into their own SQL (no separate planning pass, mirroring the
// one-round-trip style of quickly-pick's handlers).
package frequency

import (
	"context"

	"varda/internal/binning"
	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/store"
)

// Engine answers frequency queries against a Store.
type Engine struct {
	Store  store.Store
	Scheme binning.Scheme
}

// New wires an Engine against store with the default binning scheme.
func New(s store.Store) *Engine {
	return &Engine{Store: s, Scheme: binning.Default}
}

// Result is the outcome of one Frequency call.
type Result struct {
	Observed     int // Σ support over matching observations
	Covered      int // Σ pool_size over samples covering v.Begin or named explicitly
	TotalSupport int // alias of Covered, the denominator for Frequency()
}

// Frequency computes observed/covered for variant against selection.
// covered doubles as total_support: total_support is defined as covered,
// the ratio's denominator.
func (e *Engine) Frequency(ctx context.Context, variant domain.Variant, sel *selection.Expr) (Result, error) {
	pred := selection.Compile(sel)

	_, totalSupport, err := e.Store.Observations().CountForVariant(ctx, variant.ID, pred)
	if err != nil {
		return Result{}, err
	}

	// CoveredRegion rows store one-based inclusive coordinates; the bin
	// predicate operates on the zero-based half-open point [Begin-1, Begin),
	// the same begin-1/end conversion used throughout internal/store's
	// binning boundary.
	bins := e.Scheme.Overlapping(variant.Begin-1, variant.Begin)
	covered, err := e.Store.Coverage().CountCovering(ctx, variant.Chrom, variant.Begin, bins, pred)
	if err != nil {
		return Result{}, err
	}

	return Result{Observed: totalSupport, Covered: covered, TotalSupport: covered}, nil
}

// Ratio returns observed/covered as a float64, and ok=false when covered is
// zero (frequency is undefined when there is no coverage).
func (r Result) Ratio() (ratio float64, ok bool) {
	if r.Covered == 0 {
		return 0, false
	}
	return float64(r.Observed) / float64(r.Covered), true
}

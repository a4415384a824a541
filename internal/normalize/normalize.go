// Package normalize implements the variant canonicalization rule: trim the
// longest common prefix, then the longest common suffix of the remainder,
// of ref/obs, adjusting begin/end so that two
// different textual representations of the same genomic event normalize to
// the same (chrom, begin, end, observed) identity.
package normalize

import (
	"varda/internal/domain"
	"varda/internal/reference"
	"varda/internal/verr"
)

// Result is the normalized form of one allele call.
type Result struct {
	Chrom    string
	Begin    int64
	End      int64
	Observed string
	Class    domain.VariantClass
}

// ReferenceMismatchPolicy controls what happens when a configured Oracle
// disagrees with the claimed ref allele (the REFERENCE_MISMATCH_ABORT setting).
type ReferenceMismatchPolicy int

const (
	AbortOnMismatch ReferenceMismatchPolicy = iota
	DropOnMismatch
)

// Normalize trims the longest common prefix, then the longest common
// suffix, of ref and obs, and recomputes begin/end accordingly. chrom is
// returned unchanged; callers canonicalize chromosome names separately via
// an Oracle (the "chr20 vs 20" rule) before or after calling this.
//
// Normalize is idempotent: Normalize(Normalize(v)) == Normalize(v), since a
// pair with no common suffix or prefix left is a fixed point.
func Normalize(chrom string, begin int64, ref, obs string) Result {
	r, o := ref, obs

	// Trim the longest common prefix first so that an anchor base shared at
	// the left edge (the common VCF convention for indels) is consumed
	// before any trailing run of identical bases can be mistaken for a
	// second shared anchor — then trim whatever common suffix remains in
	// the trimmed remainder.
	prefix := 0
	for prefix < len(r) && prefix < len(o) && r[prefix] == o[prefix] {
		prefix++
	}
	r = r[prefix:]
	o = o[prefix:]

	suffix := 0
	for suffix < len(r) && suffix < len(o) && r[len(r)-1-suffix] == o[len(o)-1-suffix] {
		suffix++
	}
	r = r[:len(r)-suffix]
	o = o[:len(o)-suffix]

	newBegin := begin + int64(prefix)
	newEnd := newBegin + int64(len(r)) - 1 // for pure insertion len(r)==0 => end = begin-1

	return Result{
		Chrom:    chrom,
		Begin:    newBegin,
		End:      newEnd,
		Observed: o,
		Class:    classify(r, o),
	}
}

func classify(ref, obs string) domain.VariantClass {
	switch {
	case len(ref) == 1 && len(obs) == 1:
		return domain.ClassSNV
	case len(ref) == 0:
		return domain.ClassInsertion
	case len(obs) == 0:
		return domain.ClassDeletion
	default:
		return domain.ClassMNV
	}
}

// Verify checks the claimed ref allele, as given on the original record
// before any trimming, against the Oracle's bases
// [begin, begin+len(claimedRef)-1], applying policy on mismatch.
//
// It returns (verified bool, err error): verified is false and err is nil
// when policy is DropOnMismatch and the bases disagree (caller should drop
// the record and record a task warning); err is non-nil when policy is
// AbortOnMismatch and the bases disagree, or when the lookup itself fails.
func Verify(oracle reference.Oracle, chrom string, begin int64, claimedRef string, policy ReferenceMismatchPolicy) (bool, error) {
	if len(claimedRef) == 0 {
		return true, nil
	}
	actual, err := oracle.Bases(chrom, begin, begin+int64(len(claimedRef))-1)
	if err != nil {
		return false, err
	}
	if actual == claimedRef {
		return true, nil
	}
	if policy == AbortOnMismatch {
		return false, verr.New(verr.BadRequest, "normalize: reference mismatch at %s:%d: claimed %q, actual %q", chrom, begin, claimedRef, actual)
	}
	return false, nil
}

// Identity returns the canonical 4-tuple key used for Variant uniqueness:
// no two Variants share the 4-tuple.
func (r Result) Identity() (chrom string, begin, end int64, observed string) {
	return r.Chrom, r.Begin, r.End, r.Observed
}

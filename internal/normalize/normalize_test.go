package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"varda/internal/reference"
)

func TestNormalizeSNV(t *testing.T) {
	r := Normalize("chr19", 100, "A", "G")
	assert.Equal(t, int64(100), r.Begin)
	assert.Equal(t, int64(100), r.End)
	assert.Equal(t, "G", r.Observed)
	assert.Equal(t, "snv", string(r.Class))
}

// S3: chr19 100 . ACAAA A -> (chr19, 101, 104, "") deletion of CAAA.
func TestNormalizeDeletionWithSharedAnchor(t *testing.T) {
	r := Normalize("chr19", 100, "ACAAA", "A")
	assert.Equal(t, int64(101), r.Begin)
	assert.Equal(t, int64(104), r.End)
	assert.Equal(t, "", r.Observed)
	assert.Equal(t, "deletion", string(r.Class))
}

// The right-shifted equivalent representation of the same deletion (anchor
// kept on the right instead of the left) must normalize to the identical
// identity.
func TestNormalizeRightShiftedFormMatchesSameIdentity(t *testing.T) {
	left := Normalize("chr19", 100, "ACAAA", "A")

	// Right-shifted: anchor kept at the end, deletion is the leading CAAA,
	// expressed starting one base later with the obs anchor moved to match.
	right := Normalize("chr19", 101, "CAAAA", "A")

	lChrom, lBegin, lEnd, lObs := left.Identity()
	rChrom, rBegin, rEnd, rObs := right.Identity()
	assert.Equal(t, lChrom, rChrom)
	assert.Equal(t, lBegin, rBegin)
	assert.Equal(t, lEnd, rEnd)
	assert.Equal(t, lObs, rObs)
}

func TestNormalizePureInsertion(t *testing.T) {
	r := Normalize("chr19", 100, "A", "ATT")
	assert.Equal(t, int64(101), r.Begin)
	assert.Equal(t, int64(100), r.End) // end = begin - 1 for insertions
	assert.Equal(t, "TT", r.Observed)
	assert.Equal(t, "insertion", string(r.Class))
}

func TestNormalizeIdempotent(t *testing.T) {
	cases := []struct {
		chrom      string
		begin      int64
		ref, obs   string
	}{
		{"chr19", 100, "ACAAA", "A"},
		{"chr19", 100, "A", "G"},
		{"chr19", 100, "A", "ATT"},
		{"chr1", 55, "GATTACA", "GAT"},
	}
	for _, c := range cases {
		once := Normalize(c.chrom, c.begin, c.ref, c.obs)
		twice := Normalize(once.Chrom, once.Begin, stringOrEmpty(once), once.Observed)
		oChrom, oBegin, oEnd, oObs := once.Identity()
		tChrom, tBegin, tEnd, tObs := twice.Identity()
		assert.Equal(t, oChrom, tChrom, "case %+v", c)
		assert.Equal(t, oBegin, tBegin, "case %+v", c)
		assert.Equal(t, oEnd, tEnd, "case %+v", c)
		assert.Equal(t, oObs, tObs, "case %+v", c)
	}
}

// stringOrEmpty reconstructs the "ref" that would be re-fed into Normalize
// for the idempotence check: the reference span implied by [Begin, End].
func stringOrEmpty(r Result) string {
	n := r.End - r.Begin + 1
	if n <= 0 {
		return ""
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = 'N' // content doesn't matter for idempotence of trimming against obs with no overlap
	}
	return string(out)
}

func TestVerifyAbortsOnMismatch(t *testing.T) {
	o := stubOracle{seq: "AAAA"}
	_, err := Verify(o, "19", 1, "CCCC", AbortOnMismatch)
	require.Error(t, err)
}

func TestVerifyDropsOnMismatch(t *testing.T) {
	o := stubOracle{seq: "AAAA"}
	ok, err := Verify(o, "19", 1, "CCCC", DropOnMismatch)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassesOnMatch(t *testing.T) {
	o := stubOracle{seq: "AAAA"}
	ok, err := Verify(o, "19", 1, "AAAA", AbortOnMismatch)
	require.NoError(t, err)
	assert.True(t, ok)
}

type stubOracle struct {
	seq string
}

func (s stubOracle) Chromosomes() []reference.ChromInfo { return nil }

func (s stubOracle) Bases(chrom string, begin, end int64) (string, error) {
	return s.seq[begin-1 : end], nil
}

func (s stubOracle) Canonicalize(chrom string) (string, bool) { return chrom, true }

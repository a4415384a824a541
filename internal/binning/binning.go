// Package binning implements the UCSC/tabix-style fixed-depth bin hierarchy
// used to bound range queries over genomic intervals.
//
// The scheme is the same reg2bin/reg2bins construction used by tabix/CSI
// indexing (grounded on other_examples/biogo-hts__csi.go's reg2bin and
// reg2bins): each level of the hierarchy divides the previous level's
// interval width by 2^nextBinShift, and bin ids are offset so that every
// level's ids are disjoint, letting a single integer column hold every
// level's bins.
package binning

import "varda/internal/verr"

const nextBinShift = 3 // each level divides width by 2^3 = 8, the 512/64/8/1 Mb cadence

// Bin is a non-negative integer identifying one bin at one level of the
// hierarchy. Bin ids are comparable within one chromosome only; callers key
// range indexes on (chrom, bin, begin).
type Bin uint32

// Scheme carries the two parameters that fully determine the hierarchy: the
// log2 width of the leaf tier (MinShift) and the number of levels above it
// (Depth). A 7-level hierarchy with a single 2^32 root bin is the default.
type Scheme struct {
	MinShift uint32
	Depth    uint32
}

// Default is the standard hierarchy of 7 levels: a single 2^32 (4 Gb) root
// bin, then 512 Mb, 64 Mb, 8 Mb, 1 Mb and 128 kb tiers, down to a 2^14
// (16 kb) leaf tier, each level 1/8th of its parent.
var Default = Scheme{MinShift: 14, Depth: 6}

// MaxCoordinate is the largest one-based coordinate representable by the
// scheme; Assign rejects intervals extending past it.
func (s Scheme) MaxCoordinate() int64 {
	return int64(1) << (s.MinShift + s.Depth*nextBinShift)
}

// Assign returns the single smallest bin that fully contains the zero-based,
// half-open interval [begin, end). It mirrors reg2bin from the tabix/CSI
// scheme.
func (s Scheme) Assign(begin, end int64) (Bin, error) {
	if begin < 0 || end <= begin {
		return 0, verr.New(verr.BadRequest, "binning: invalid interval [%d, %d)", begin, end)
	}
	if end > s.MaxCoordinate() {
		return 0, verr.New(verr.BadRequest, "binning: end %d exceeds max coordinate %d (OutOfRange)", end, s.MaxCoordinate())
	}

	e := end - 1
	shift := s.MinShift
	tileOffset := uint32(((1 << (s.Depth * nextBinShift)) - 1) / 7)
	for level := s.Depth; level > 0; level-- {
		if begin>>shift == e>>shift {
			return Bin(tileOffset + uint32(begin>>shift)), nil
		}
		shift += nextBinShift
		tileOffset -= 1 << ((level - 1) * nextBinShift)
	}
	return 0, nil
}

// Overlapping returns every bin, across all levels, that can contain an
// interval overlapping the zero-based, half-open query [begin, end). It
// mirrors reg2bins from the tabix/CSI scheme; the returned slice is small
// (levels+1 contiguous runs) and deterministic.
func (s Scheme) Overlapping(begin, end int64) []Bin {
	if end <= begin {
		return nil
	}
	e := end - 1
	var bins []Bin
	shift := s.MinShift + s.Depth*nextBinShift
	tileOffset := uint32(0)
	for level := uint32(0); level <= s.Depth; level++ {
		lo := tileOffset + uint32(begin>>shift)
		hi := tileOffset + uint32(e>>shift)
		for b := lo; b <= hi; b++ {
			bins = append(bins, Bin(b))
		}
		shift -= nextBinShift
		tileOffset += 1 << (level * nextBinShift)
	}
	return bins
}

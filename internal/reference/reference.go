// Package reference wraps a block-indexed FASTA file, giving the normalizer
// and ingestion pipeline read-only access to reference bases.
//
// The interface shape (one method per query kind, returning an error rather
// than panicking) is grounded on the Service interface in
// other_examples/mendelics-twobit__twobitService.go; unlike that 2-bit
// reader, varda indexes a plain FASTA since that is what GENOME points at.
package reference

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"varda/internal/verr"
)

// ChromInfo names one chromosome/contig and its length in bases.
type ChromInfo struct {
	Name   string
	Length int64
}

// Oracle answers reference-base lookups. Implementations must be safe for
// concurrent readers; the FASTA-backed implementation below only ever
// reads the underlying file after the one-time index build, so a single
// *os.File shared across goroutines with ReadAt is sufficient.
type Oracle interface {
	Chromosomes() []ChromInfo
	Bases(chrom string, begin, end int64) (string, error)
	// Canonicalize maps an input chromosome name (e.g. "chr20") onto the
	// oracle's own naming (e.g. "20").
	Canonicalize(chrom string) (string, bool)
}

type record struct {
	name       string
	length     int64
	dataOffset int64 // byte offset of the first base in the file
	lineBases  int64 // bases per line (for offset math)
	lineBytes  int64 // bytes per line including newline
}

// FASTA is an Oracle backed by a plain (optionally multi-record) FASTA file,
// indexed once at Open time the way samtools' .fai sidecar is built, but
// in-memory and without persisting a sidecar file.
type FASTA struct {
	mu      sync.Mutex // held around each ReadAt in Bases; no seeks are made
	f       *os.File
	records map[string]*record
	order   []string
	byBare  map[string]string // "20" -> canonical name actually in the file
}

// Open builds the offset index by scanning the file once.
func Open(path string) (*FASTA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "reference: open %s", path)
	}

	fa := &FASTA{
		f:       f,
		records: map[string]*record{},
		byBare:  map[string]string{},
	}

	r := bufio.NewReaderSize(f, 1<<20)
	var (
		offset     int64
		cur        *record
		curLineLen int64 = -1
	)
	for {
		lineStart := offset
		line, err := r.ReadString('\n')
		n := int64(len(line))
		offset += n
		trimmed := strings.TrimRight(line, "\n")
		if len(trimmed) > 0 && trimmed[0] == '>' {
			name := strings.Fields(trimmed[1:])[0]
			cur = &record{name: name, dataOffset: offset}
			fa.records[name] = cur
			fa.byBare[bareName(name)] = name
			fa.order = append(fa.order, name)
			curLineLen = -1
		} else if cur != nil && len(trimmed) > 0 {
			cur.length += int64(len(trimmed))
			if curLineLen == -1 {
				curLineLen = int64(len(trimmed))
				cur.lineBases = curLineLen
				cur.lineBytes = n
			}
			_ = lineStart
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, verr.Wrap(verr.Internal, err, "reference: scan %s", path)
		}
	}
	return fa, nil
}

func bareName(name string) string {
	return strings.TrimPrefix(strings.ToLower(name), "chr")
}

func (fa *FASTA) Close() error { return fa.f.Close() }

func (fa *FASTA) Chromosomes() []ChromInfo {
	out := make([]ChromInfo, 0, len(fa.order))
	for _, name := range fa.order {
		rec := fa.records[name]
		out = append(out, ChromInfo{Name: rec.name, Length: rec.length})
	}
	return out
}

func (fa *FASTA) Canonicalize(chrom string) (string, bool) {
	if _, ok := fa.records[chrom]; ok {
		return chrom, true
	}
	if name, ok := fa.byBare[bareName(chrom)]; ok {
		return name, true
	}
	return "", false
}

// Bases returns the reference sequence for the one-based, inclusive
// [begin, end] interval on chrom.
func (fa *FASTA) Bases(chrom string, begin, end int64) (string, error) {
	name, ok := fa.Canonicalize(chrom)
	if !ok {
		return "", verr.New(verr.BadRequest, "reference: unknown chromosome %q (UnknownChromosome)", chrom)
	}
	rec := fa.records[name]
	if begin < 1 || end < begin || end > rec.length {
		return "", verr.New(verr.BadRequest, "reference: [%d,%d] out of range for %s (len %d) (OutOfRange)", begin, end, name, rec.length)
	}
	if rec.lineBases == 0 {
		return "", nil
	}

	zeroBegin := begin - 1
	startLine := zeroBegin / rec.lineBases
	startCol := zeroBegin % rec.lineBases
	byteStart := rec.dataOffset + startLine*rec.lineBytes + startCol

	wantBases := end - begin + 1
	// worst case bytes needed: bases plus one newline per line crossed
	linesSpanned := (startCol+wantBases)/rec.lineBases + 1
	bufLen := wantBases + linesSpanned + 1

	buf := make([]byte, bufLen)
	fa.mu.Lock()
	n, rerr := fa.f.ReadAt(buf, byteStart)
	fa.mu.Unlock()
	if rerr != nil && rerr != io.EOF {
		return "", verr.Wrap(verr.Internal, rerr, "reference: read %s", name)
	}
	buf = buf[:n]

	out := make([]byte, 0, wantBases)
	for _, b := range buf {
		if b == '\n' || b == '\r' {
			continue
		}
		out = append(out, b)
		if int64(len(out)) == wantBases {
			break
		}
	}
	if int64(len(out)) != wantBases {
		return "", verr.New(verr.Internal, "reference: short read for %s [%d,%d]: got %d of %d bases", name, begin, end, len(out), wantBases)
	}
	return string(out), nil
}

func (fa *FASTA) String() string {
	return fmt.Sprintf("reference.FASTA(%d contigs)", len(fa.order))
}

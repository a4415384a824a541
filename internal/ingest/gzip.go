package ingest

import (
	"io"

	"github.com/biogo/hts/bgzf"

	"varda/internal/verr"
)

// decompress wraps r in a bgzf.Reader when gzipped is true, mirroring
// svync's read.go dispatch on a ".gz" suffix (readBgzip vs readPlain).
// Compressed VCF/BED uploads are expected to be BGZF-blocked the way
// bcftools/tabix produce them, not arbitrary gzip, since BGZF is what the
// rest of the genomics tooling in this pack (the CSI/tabix binning scheme
// itself) assumes; plain gzip-compressed uploads are rejected rather than
// silently mis-parsed.
func decompress(r io.Reader, gzipped bool) (io.Reader, io.Closer, error) {
	if !gzipped {
		return r, nil, nil
	}
	br, err := bgzf.NewReader(r, 0)
	if err != nil {
		return nil, nil, verr.Wrap(verr.BadRequest, err, "ingest: open bgzf stream")
	}
	return br, br, nil
}

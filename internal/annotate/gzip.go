package annotate

import (
	"io"

	"github.com/biogo/hts/bgzf"

	"varda/internal/verr"
)

// decompress mirrors internal/ingest's dispatch on DataSource.Gzipped:
// BGZF for a gzipped source, the plain reader otherwise.
func decompress(r io.Reader, gzipped bool) (io.Reader, io.Closer, error) {
	if !gzipped {
		return r, nil, nil
	}
	br, err := bgzf.NewReader(r, 0)
	if err != nil {
		return nil, nil, verr.Wrap(verr.BadRequest, err, "annotate: open bgzf stream")
	}
	return br, br, nil
}

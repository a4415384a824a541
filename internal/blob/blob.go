// Package blob is the content-addressed storage facade fronting whatever
// concrete object store a deployment uses. Both the ingestion pipeline and
// the annotation pipeline read and write through a Store rather than
// talking to a filesystem or object store directly, so the concrete
// backend is swappable.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"varda/internal/verr"
)

// Store puts and retrieves byte streams keyed by their content digest
// (lowercase hex SHA-256 of the bytes as stored, matching
// DataSource.Digest). Nothing is decompressed first: for a gzipped upload
// the digest and size are those of the compressed bytes.
type Store interface {
	// Put streams r to the backend, returning its content digest and the
	// number of bytes written.
	Put(ctx context.Context, r io.Reader) (digest string, size int64, err error)
	// Open returns a reader over the blob with the given digest. Callers
	// must Close it.
	Open(ctx context.Context, digest string) (io.ReadCloser, error)
	Exists(ctx context.Context, digest string) (bool, error)
}

// Digest computes the content digest Put would produce for r, without
// storing anything; useful for duplicate-detection checks ahead of a full
// upload, rejecting a DataSource whose digest already exists for an owner.
func Digest(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, verr.Wrap(verr.Internal, err, "blob: digest")
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

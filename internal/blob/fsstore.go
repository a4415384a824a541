package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"varda/internal/verr"
)

// FSStore is a Store backed by a local directory, content-addressed by
// sha256 digest the way gohan's drsBridgeDirectory stages a file on a
// shared filesystem before handing its path to the DRS ingest endpoint
// (services/ingestion.go's UploadVcfGzToDrs). Used for tests and
// single-node deployments; DRSStore is the production adapter.
type FSStore struct {
	dir string
}

// NewFSStore roots the store at dir, creating it if necessary.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, verr.Wrap(verr.Internal, err, "blob: create store dir %s", dir)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(digest string) string {
	// Two-level fan-out (ab/cd/abcd...) avoids one directory holding
	// millions of entries, the common content-addressed-store layout.
	if len(digest) < 4 {
		return filepath.Join(s.dir, digest)
	}
	return filepath.Join(s.dir, digest[:2], digest[2:4], digest)
}

func (s *FSStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return "", 0, verr.Wrap(verr.Internal, err, "blob: create temp file")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	h := sha256.New()
	n, err := io.Copy(tmp, io.TeeReader(r, h))
	if err != nil {
		return "", 0, verr.Wrap(verr.Internal, err, "blob: write upload")
	}
	if err := tmp.Close(); err != nil {
		return "", 0, verr.Wrap(verr.Internal, err, "blob: close upload")
	}

	digest := hex.EncodeToString(h.Sum(nil))
	dest := s.path(digest)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, verr.Wrap(verr.Internal, err, "blob: create blob dir")
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, verr.Wrap(verr.Internal, err, "blob: finalize blob %s", digest)
	}
	return digest, n, nil
}

func (s *FSStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, verr.New(verr.NotFound, "blob: no blob with digest %s", digest)
		}
		return nil, verr.Wrap(verr.Internal, err, "blob: open %s", digest)
	}
	return f, nil
}

func (s *FSStore) Exists(ctx context.Context, digest string) (bool, error) {
	_, err := os.Stat(s.path(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, verr.Wrap(verr.Internal, err, "blob: stat %s", digest)
}

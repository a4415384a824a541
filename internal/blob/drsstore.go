package blob

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Jeffail/gabs"

	"varda/internal/verr"
)

// DRSStore uploads blobs to a Data Repository Service-style HTTP endpoint,
// grounded on gohan's services/ingestion.go UploadVcfGzToDrs: POST a path
// reference, basic-auth, retry up to MaxAttempts with a fixed backoff, dig
// the returned id out of the JSON body with gabs rather than a typed
// response struct.
type DRSStore struct {
	BaseURL      string
	Username     string
	Password     string
	InsecureTLS  bool
	MaxAttempts  int
	RetryBackoff time.Duration

	staging Store // where Put first lands the bytes before handing DRS a path
}

// NewDRSStore wires a DRSStore that stages uploads through staging (an
// FSStore rooted at the directory the DRS bridge also mounts) before
// notifying the remote service, mirroring gohan's drsBridgeDirectory
// convention: the bridge directory is a filesystem both varda and the DRS
// process can see.
func NewDRSStore(baseURL, username, password string, staging Store) *DRSStore {
	return &DRSStore{
		BaseURL:      baseURL,
		Username:     username,
		Password:     password,
		MaxAttempts:  5,
		RetryBackoff: 3 * time.Second,
		staging:      staging,
	}
}

func (d *DRSStore) client() *http.Client {
	c := &http.Client{}
	if d.InsecureTLS {
		c.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return c
}

// Put stages r and registers it with the DRS service. Unlike FSStore.Put,
// the string it returns is the object id the service assigned, not the
// content digest; Open and Exists address objects by that id.
func (d *DRSStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	digest, size, err := d.staging.Put(ctx, r)
	if err != nil {
		return "", 0, err
	}

	body := bytes.NewBufferString(fmt.Sprintf(`{"path": %q}`, digest))
	var lastErr error
	for attempt := 0; attempt < d.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(d.RetryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/private/ingest", bytes.NewReader(body.Bytes()))
		if err != nil {
			return "", 0, verr.Wrap(verr.Internal, err, "blob: build ingest request")
		}
		req.SetBasicAuth(d.Username, d.Password)
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client().Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			if readErr != nil {
				return "", 0, verr.Wrap(verr.Internal, readErr, "blob: read ingest response")
			}
			parsed, err := gabs.ParseJSON(respBody)
			if err != nil {
				return "", 0, verr.Wrap(verr.Internal, err, "blob: parse ingest response")
			}
			id, ok := parsed.Path("id").Data().(string)
			if !ok || id == "" {
				return "", 0, verr.New(verr.Internal, "blob: ingest response missing id")
			}
			return id, size, nil
		case http.StatusUnauthorized:
			return "", 0, verr.New(verr.Unauthorized, "blob: ingest endpoint rejected credentials")
		default:
			lastErr = verr.New(verr.Internal, "blob: ingest returned status %d", resp.StatusCode)
		}
	}
	return "", 0, verr.Wrap(verr.Internal, lastErr, "blob: ingest failed after %d attempts", d.MaxAttempts)
}

func (d *DRSStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/objects/"+digest+"/access/https", nil)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "blob: build access request")
	}
	req.SetBasicAuth(d.Username, d.Password)

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, verr.Wrap(verr.Internal, err, "blob: access request for %s", digest)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, verr.New(verr.NotFound, "blob: no blob with digest %s", digest)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, verr.New(verr.Internal, "blob: access returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (d *DRSStore) Exists(ctx context.Context, digest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/objects/"+digest, nil)
	if err != nil {
		return false, verr.Wrap(verr.Internal, err, "blob: build exists request")
	}
	req.SetBasicAuth(d.Username, d.Password)

	resp, err := d.client().Do(req)
	if err != nil {
		return false, verr.Wrap(verr.Internal, err, "blob: exists request for %s", digest)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

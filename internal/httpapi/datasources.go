package httpapi

import (
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"varda/internal/domain"
	"varda/internal/verr"
)

// uploadDataSource accepts a multipart "file" field, streams it through the
// blob facade, and registers a DataSource row, rejecting a digest this
// owner has already uploaded rather than silently deduplicating.
func uploadDataSource(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleImporter); err != nil {
		return err
	}

	fileType := domain.FileType(c.FormValue("file_type"))
	if fileType != domain.FileTypeVCF && fileType != domain.FileTypeBED && fileType != domain.FileTypeCSV {
		return verr.New(verr.BadRequest, "httpapi: unsupported file_type %q", fileType)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: missing file field")
	}
	if vc.Config.Store.MaxContentLength > 0 && fh.Size > vc.Config.Store.MaxContentLength {
		return verr.New(verr.EntityTooLarge, "httpapi: upload of %d bytes exceeds the configured ceiling", fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return verr.Wrap(verr.Internal, err, "httpapi: open uploaded file")
	}
	defer f.Close()

	ctx := c.Request().Context()
	digest, size, err := vc.BlobStore.Put(ctx, f)
	if err != nil {
		return err
	}

	if existing, found, err := vc.Store.DataSources().FindByDigest(ctx, vc.User.ID, digest); err != nil {
		return err
	} else if found {
		return verr.New(verr.IntegrityConflict, "httpapi: data source %s already exists for this owner", existing.ID)
	}

	ds := domain.DataSource{
		ID:       uuid.New().String(),
		Digest:   digest,
		FileType: fileType,
		Gzipped:  isGzipMagic(fh),
		Owner:    vc.User.ID,
		Size:     size,
	}
	id, err := vc.Store.DataSources().Create(ctx, ds)
	if err != nil {
		return err
	}
	ds.ID = id
	return c.JSON(http.StatusCreated, toDataSourceDTO(ds))
}

func isGzipMagic(fh *multipart.FileHeader) bool {
	f, err := fh.Open()
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 2)
	n, _ := f.Read(magic)
	return n == 2 && magic[0] == 0x1f && magic[1] == 0x8b
}

func getDataSource(c echo.Context) error {
	vc := asVardaContext(c)
	ds, err := vc.Store.DataSources().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDataSourceDTO(ds))
}

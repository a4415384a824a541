package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"varda/internal/broker"
	"varda/internal/domain"
	"varda/internal/selection"
	"varda/internal/verr"
)

type createAnnotationRequest struct {
	OriginalDataSourceID string              `json:"original_data_source_id"`
	Queries              []domain.NamedQuery `json:"queries"`
}

func createAnnotation(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleAnnotator); err != nil {
		return err
	}

	var req createAnnotationRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode annotation request")
	}
	if req.OriginalDataSourceID == "" || len(req.Queries) == 0 {
		return verr.New(verr.BadRequest, "httpapi: original_data_source_id and at least one query are required")
	}
	seen := map[string]bool{}
	for _, q := range req.Queries {
		if q.Slug == "" || seen[q.Slug] {
			return verr.New(verr.BadRequest, "httpapi: query slugs must be present and unique")
		}
		seen[q.Slug] = true
		if _, err := selection.Parse(q.Expression); err != nil {
			return verr.Wrap(verr.BadRequest, err, "httpapi: query %s: unparseable selection expression", q.Slug)
		}
	}

	ctx := c.Request().Context()
	if _, err := vc.Store.DataSources().Get(ctx, req.OriginalDataSourceID); err != nil {
		return err
	}

	ann := domain.Annotation{OriginalDataSourceID: req.OriginalDataSourceID, Queries: req.Queries}
	id, err := vc.Store.Annotations().Create(ctx, ann)
	if err != nil {
		return err
	}
	ann.ID = id

	t := domain.Task{ID: uuid.New().String(), Kind: domain.TaskAnnotate, Target: id, State: domain.TaskWaiting}
	if err := vc.Manager.Submit(ctx, t, broker.Payload{AnnotationID: id}); err != nil {
		return err
	}
	if err := vc.Store.Annotations().SetTask(ctx, id, t.ID); err != nil {
		return err
	}
	ann.TaskID = t.ID

	dto := toAnnotationDTO(ann)
	td := toTaskDTO(t)
	dto.Task = &td
	return c.JSON(http.StatusCreated, dto)
}

func getAnnotation(c echo.Context) error {
	vc := asVardaContext(c)
	ctx := c.Request().Context()
	ann, err := vc.Store.Annotations().Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	dto := toAnnotationDTO(ann)
	if ann.TaskID != "" {
		if t, terr := vc.Store.Tasks().Get(ctx, ann.TaskID); terr == nil {
			td := toTaskDTO(t)
			dto.Task = &td
		}
	}
	return c.JSON(http.StatusOK, dto)
}

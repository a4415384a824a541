package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"varda/internal/broker"
	"varda/internal/domain"
	"varda/internal/verr"
)

type createVariationRequest struct {
	SampleID     string `json:"sample_id"`
	DataSourceID string `json:"data_source_id"`
}

// createVariation enqueues an import-variation task rather than importing
// inline, so a large VCF upload never blocks the request that registered
// it; the caller polls the returned task via GET /samples/:id.
func createVariation(c echo.Context) error {
	return submitImportTask(c, domain.TaskImportVariation)
}

func createCoverage(c echo.Context) error {
	return submitImportTask(c, domain.TaskImportCoverage)
}

func submitImportTask(c echo.Context, kind domain.TaskKind) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleImporter); err != nil {
		return err
	}

	var req createVariationRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode import request")
	}
	if req.SampleID == "" || req.DataSourceID == "" {
		return verr.New(verr.BadRequest, "httpapi: sample_id and data_source_id are required")
	}

	ctx := c.Request().Context()
	sample, err := vc.Store.Samples().Get(ctx, req.SampleID)
	if err != nil {
		return err
	}
	if sample.Active {
		return verr.New(verr.IntegrityConflict, "httpapi: sample %s is active, deactivate before importing", sample.ID)
	}

	t := domain.Task{ID: uuid.New().String(), Kind: kind, Target: req.SampleID, DataSourceID: req.DataSourceID}
	payload := broker.Payload{SampleID: req.SampleID, DataSourceID: req.DataSourceID}
	if err := vc.Manager.Submit(ctx, t, payload); err != nil {
		return err
	}
	if err := vc.Store.Samples().SetImportTask(ctx, sample.ID, t.ID); err != nil {
		return err
	}

	td := toTaskDTO(t)
	return c.JSON(http.StatusAccepted, map[string]interface{}{"task": td})
}

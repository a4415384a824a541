package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/httpapi/rangeparam"
	"varda/internal/verr"
)

type createSampleRequest struct {
	Name            string `json:"name"`
	PoolSize        int    `json:"pool_size"`
	CoverageProfile bool   `json:"coverage_profile"`
	Public          bool   `json:"public"`
	Notes           string `json:"notes"`
}

func createSample(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleImporter); err != nil {
		return err
	}

	var req createSampleRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode sample request")
	}
	if req.Name == "" {
		return verr.New(verr.BadRequest, "httpapi: sample name is required")
	}
	poolSize := req.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}

	s := domain.Sample{
		ID:              uuid.New().String(),
		Owner:           vc.User.ID,
		Name:            req.Name,
		PoolSize:        poolSize,
		CoverageProfile: req.CoverageProfile,
		Public:          req.Public,
		Notes:           req.Notes,
	}
	if err := vc.Store.Samples().Create(c.Request().Context(), s); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSampleDTO(s))
}

func getSample(c echo.Context) error {
	vc := asVardaContext(c)
	s, err := vc.Store.Samples().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	dto := toSampleDTO(s)
	if s.ImportTaskID != "" {
		if t, terr := vc.Store.Tasks().Get(c.Request().Context(), s.ImportTaskID); terr == nil {
			td := toTaskDTO(t)
			dto.Task = &td
		}
	}
	return c.JSON(http.StatusOK, dto)
}

func listSamples(c echo.Context) error {
	vc := asVardaContext(c)
	window, err := rangeparam.ParseRange(c.Request().Header.Get("Range"))
	if err != nil {
		return err
	}

	all, err := vc.Store.Samples().List(c.Request().Context())
	if err != nil {
		return err
	}

	total := len(all)
	first, last := window.First, window.Last
	if first >= total {
		first, last = total, total-1
	} else if last >= total {
		last = total - 1
	}
	var page []domain.Sample
	if first <= last {
		page = all[first : last+1]
	}

	out := make([]sampleDTO, len(page))
	for i, s := range page {
		out[i] = toSampleDTO(s)
	}

	c.Response().Header().Set("Content-Range", rangeparam.ContentRange(window, total))
	return c.JSON(http.StatusPartialContent, out)
}

// activateSample and deactivateSample drive the sample state machine
// through the manager's transactional Activate/Deactivate helpers rather
// than a direct store write, so the activation guard always runs.
func activateSample(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleImporter); err != nil {
		return err
	}
	if err := vc.Manager.Activate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func deactivateSample(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleAdmin); err != nil {
		return err
	}
	if err := vc.Manager.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"varda/internal/domain"
	"varda/internal/verr"
)

type createGroupRequest struct {
	Name      string   `json:"name"`
	SampleIDs []string `json:"sample_ids"`
}

func createGroup(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleGroupAdmin); err != nil {
		return err
	}

	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode group request")
	}
	if req.Name == "" {
		return verr.New(verr.BadRequest, "httpapi: group name is required")
	}

	g := domain.Group{ID: uuid.New().String(), Owner: vc.User.ID, Name: req.Name, SampleIDs: req.SampleIDs}
	if err := vc.Store.Groups().Create(c.Request().Context(), g); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toGroupDTO(g))
}

func getGroup(c echo.Context) error {
	vc := asVardaContext(c)
	g, err := vc.Store.Groups().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toGroupDTO(g))
}

func addGroupMember(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleGroupAdmin); err != nil {
		return err
	}
	var req struct {
		SampleID string `json:"sample_id"`
	}
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode group member request")
	}
	if req.SampleID == "" {
		return verr.New(verr.BadRequest, "httpapi: sample_id is required")
	}
	if err := vc.Store.Groups().AddMember(c.Request().Context(), c.Param("id"), req.SampleID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

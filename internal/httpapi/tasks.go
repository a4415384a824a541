package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"varda/internal/domain"
	"varda/internal/verr"
)

func getTask(c echo.Context) error {
	vc := asVardaContext(c)
	t, err := vc.Store.Tasks().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"task": toTaskDTO(t)})
}

type patchTaskRequest struct {
	State map[string]interface{} `json:"state"`
}

// patchTask implements the admin re-schedule convention: a PATCH with
// {state:{}} clears progress/error and returns the task to waiting.
func patchTask(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleAdmin); err != nil {
		return err
	}

	var req patchTaskRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode task patch")
	}
	if req.State == nil {
		return verr.New(verr.BadRequest, "httpapi: PATCH body must set state")
	}
	if len(req.State) != 0 {
		return verr.New(verr.NotImplemented, "httpapi: only the re-schedule form {state:{}} is supported")
	}

	ctx := c.Request().Context()
	if err := vc.Store.Tasks().Reschedule(ctx, c.Param("id")); err != nil {
		return err
	}
	t, err := vc.Store.Tasks().Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"task": toTaskDTO(t)})
}

package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"varda/internal/verr"
)

// errorBody is the {error:{code,message}} envelope every failed request
// gets, the one JSON error shape the whole HTTP surface uses.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var statusByKind = map[verr.Kind]int{
	verr.BadRequest:         http.StatusBadRequest,
	verr.Unauthorized:       http.StatusUnauthorized,
	verr.Forbidden:          http.StatusForbidden,
	verr.NotFound:           http.StatusNotFound,
	verr.IntegrityConflict:  http.StatusConflict,
	verr.EntityTooLarge:     http.StatusRequestEntityTooLarge,
	verr.UnsatisfiableRange: http.StatusRequestedRangeNotSatisfiable,
	verr.NoAcceptableVersion: http.StatusNotAcceptable,
	verr.Internal:           http.StatusInternalServerError,
	verr.NotImplemented:     http.StatusNotImplemented,
}

// errorHandler replaces echo's default HTTPErrorHandler so every error this
// engine returns, internal or echo's own, reaches the client as
// {error:{code,message}} rather than echo's {message:"..."} shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	kind := verr.KindOf(err)
	status := statusByKind[kind]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := err.Error()

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		kind = kindForHTTPStatus(status)
		if m, ok := he.Message.(string); ok {
			message = m
		}
	}

	var body errorBody
	body.Error.Code = string(kind)
	body.Error.Message = message

	if werr := c.JSON(status, body); werr != nil {
		c.Logger().Error(werr)
	}
}

func kindForHTTPStatus(status int) verr.Kind {
	for k, s := range statusByKind {
		if s == status {
			return k
		}
	}
	return verr.Internal
}

package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"varda/internal/domain"
	"varda/internal/store/sqlstore"
	"varda/internal/verr"
)

type createUserRequest struct {
	Login string        `json:"login"`
	Roles []domain.Role `json:"roles"`
}

func createUser(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleAdmin); err != nil {
		return err
	}

	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode user request")
	}
	if req.Login == "" {
		return verr.New(verr.BadRequest, "httpapi: login is required")
	}

	u := domain.User{ID: uuid.New().String(), Login: req.Login, Roles: req.Roles}
	id, err := vc.Store.Users().Create(c.Request().Context(), u)
	if err != nil {
		return err
	}
	u.ID = id
	return c.JSON(http.StatusCreated, toUserDTO(u))
}

func getUser(c echo.Context) error {
	vc := asVardaContext(c)
	u, err := vc.Store.Users().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserDTO(u))
}

type createTokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// createToken mints a new credential for a User, returning the plaintext
// token exactly once; only its SHA-256 digest is ever persisted.
func createToken(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleAdmin); err != nil {
		return err
	}

	var req createTokenRequest
	if err := c.Bind(&req); err != nil {
		return verr.Wrap(verr.BadRequest, err, "httpapi: decode token request")
	}
	if req.UserID == "" {
		return verr.New(verr.BadRequest, "httpapi: user_id is required")
	}

	ctx := c.Request().Context()
	if _, err := vc.Store.Users().Get(ctx, req.UserID); err != nil {
		return err
	}

	plaintext := uuid.New().String() + uuid.New().String()
	id, err := vc.Store.Tokens().Create(ctx, domain.Token{UserID: req.UserID, Hash: sqlstore.HashToken(plaintext)})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tokenResponse{ID: id, UserID: req.UserID, Token: plaintext})
}

func revokeToken(c echo.Context) error {
	vc := asVardaContext(c)
	if err := requireRole(vc, domain.RoleAdmin); err != nil {
		return err
	}
	if err := vc.Store.Tokens().Revoke(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"varda/internal/domain"
	"varda/internal/store/sqlstore"
	"varda/internal/verr"
)

// authMiddleware resolves the caller's domain.User from either a
// "Authorization: Token <hex>" header or HTTP Basic credentials (password
// doubling as the token string), the same two schemes
// services/authorization.go's MandateAuthorizationTokensMiddleware
// recognizes before handing off to the authorization service. A request
// with no credentials proceeds with a zero-value User; handlers that
// require authentication check vc.User.ID themselves.
func authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		vc := asVardaContext(c)

		plaintext, ok := extractToken(c.Request())
		if !ok {
			return next(vc)
		}

		user, found, err := vc.Store.Users().FindByTokenHash(c.Request().Context(), sqlstore.HashToken(plaintext))
		if err != nil {
			return err
		}
		if !found {
			return verr.New(verr.Unauthorized, "httpapi: unrecognized credentials")
		}
		vc.User = user
		return next(vc)
	}
}

func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	if strings.HasPrefix(header, "Token ") {
		return strings.TrimPrefix(header, "Token "), true
	}
	if username, password, ok := r.BasicAuth(); ok {
		_ = username
		return password, true
	}
	return "", false
}

// requireRole rejects the request with forbidden unless vc.User carries
// role among its Roles.
func requireRole(vc *vardaContext, role domain.Role) error {
	if vc.User.ID == "" {
		return verr.New(verr.Unauthorized, "httpapi: authentication required")
	}
	for _, r := range vc.User.Roles {
		if r == role {
			return nil
		}
	}
	return verr.New(verr.Forbidden, "httpapi: role %q required", role)
}

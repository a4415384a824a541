// Package httpapi is the HTTP/JSON surface fronting the engine's internal
// packages, wired with labstack/echo the way gohan's main.go wires routes:
// a custom Context embedding singletons, one global auth middleware, and
// a flat route table grouped by resource.
package httpapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"varda/internal/blob"
	"varda/internal/config"
	"varda/internal/frequency"
	"varda/internal/store"
	"varda/internal/task"
)

// New builds an *echo.Echo wired against the engine's singletons, mounted
// under cfg.HTTP.URLPrefix.
func New(s store.Store, b blob.Store, m *task.Manager, f *frequency.Engine, cfg config.Config) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = errorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.HTTP.CORSAllowOrigin},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE},
	}))
	if cfg.Store.MaxContentLength > 0 {
		e.Use(echomw.BodyLimit(strconv.FormatInt(cfg.Store.MaxContentLength, 10)))
	}
	e.Use(contextMiddleware(s, b, m, f, cfg))
	e.Use(authMiddleware)

	g := e.Group(cfg.HTTP.URLPrefix)
	registerRoutes(g)

	return e
}

func registerRoutes(g *echo.Group) {
	g.POST("/samples", createSample)
	g.GET("/samples", listSamples)
	g.GET("/samples/:id", getSample)
	g.POST("/samples/:id/activate", activateSample)
	g.POST("/samples/:id/deactivate", deactivateSample)

	g.POST("/data_sources", uploadDataSource)
	g.GET("/data_sources/:id", getDataSource)

	g.POST("/variations", createVariation)
	g.POST("/coverages", createCoverage)

	g.POST("/annotations", createAnnotation)
	g.GET("/annotations/:id", getAnnotation)

	g.GET("/variants", listOverlappingVariants)
	g.GET("/variants/:id/frequency", getVariantFrequency)

	g.GET("/tasks/:id", getTask)
	g.PATCH("/tasks/:id", patchTask)

	g.POST("/groups", createGroup)
	g.GET("/groups/:id", getGroup)
	g.POST("/groups/:id/members", addGroupMember)

	g.POST("/users", createUser)
	g.GET("/users/:id", getUser)

	g.POST("/tokens", createToken)
	g.DELETE("/tokens/:id", revokeToken)
}

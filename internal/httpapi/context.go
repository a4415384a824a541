package httpapi

import (
	"github.com/labstack/echo/v4"

	"varda/internal/blob"
	"varda/internal/config"
	"varda/internal/domain"
	"varda/internal/frequency"
	"varda/internal/store"
	"varda/internal/task"
)

// vardaContext carries the engine's singletons into every handler, the same
// role gohan's GohanContext plays embedding echo.Context alongside an
// Es7Client and IngestRequestChannel.
type vardaContext struct {
	echo.Context
	Store     store.Store
	BlobStore blob.Store
	Manager   *task.Manager
	Frequency *frequency.Engine
	Config    config.Config
	User      domain.User // zero value when the request carried no credentials
}

func asVardaContext(c echo.Context) *vardaContext {
	return c.(*vardaContext)
}

func contextMiddleware(s store.Store, b blob.Store, m *task.Manager, f *frequency.Engine, cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			vc := &vardaContext{Context: c, Store: s, BlobStore: b, Manager: m, Frequency: f, Config: cfg}
			return next(vc)
		}
	}
}

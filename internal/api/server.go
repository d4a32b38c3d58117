package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
)

// NewServer builds the HTTP transport: one POST route per registered tool
// name under /tools/<name>, plus a bare GET /healthz for load-balancer
// probes. Grounded on the teacher's registerRoutes(e *echo.Echo, config
// *Config) idiom (routes.go), minus the auth/session/static-asset groups
// this module has no use for.
func NewServer(registry map[string]ToolHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	tools := e.Group("/tools")
	for name, handler := range registry {
		tools.POST("/"+name, toolRoute(name, handler))
	}
	return e
}

func toolRoute(name string, handler ToolHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return writeError(c, err)
		}
		resp, err := handler(c.Request().Context(), raw)
		if err != nil {
			logging.Log.WithError(err).WithField("tool", name).Warn("tool call failed")
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

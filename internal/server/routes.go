package server

import (
	"github.com/OFFIS-RIT/causeway/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Call routes
	apiRoutes.POST("/calls", routes.IngestCallHandler)
	apiRoutes.POST("/calls/:id/reanalyze", routes.ReanalyzeCallHandler)
	apiRoutes.GET("/calls/:id/graph", routes.GetCallGraphHandler)
	apiRoutes.GET("/calls/:id/transcript", routes.GetTranscriptHandler)

	// Query routes
	apiRoutes.POST("/ask", routes.AskHandler)
}

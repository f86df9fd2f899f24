package server

import (
	"github.com/drivetrace/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document routes
	apiRoutes.POST("/documents", routes.UploadDocumentsHandler)
	apiRoutes.GET("/documents/:id", routes.GetDocumentHandler)
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler)

	// Retrieval routes
	apiRoutes.POST("/search", routes.SearchHandler)
	apiRoutes.GET("/timeline", routes.TimelineHandler)
	apiRoutes.GET("/relationships", routes.RelationshipsHandler)
}

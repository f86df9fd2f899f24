package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/drivetrace/backend/internal/server/middleware"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
)

// GetDocumentHandler returns one document's metadata, including its
// processing status and failure reason.
func GetDocumentHandler(c echo.Context) error {
	type getDocumentParams struct {
		ID string `param:"id" validate:"required"`
	}

	type getDocumentResponse struct {
		Message  string           `json:"message,omitempty"`
		Document *domain.Document `json:"document,omitempty"`
	}

	params := new(getDocumentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDocumentResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDocumentResponse{
			Message: "Invalid request",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	doc, err := app.Store.GetDocument(ctx, params.ID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return c.JSON(http.StatusNotFound, getDocumentResponse{
				Message: "Document not found",
			})
		}
		logger.Error("Failed to load document", "err", err, "id", params.ID)
		return c.JSON(http.StatusInternalServerError, getDocumentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getDocumentResponse{Document: doc})
}

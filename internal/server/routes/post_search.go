package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/drivetrace/backend/internal/server/middleware"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/query"
	"github.com/drivetrace/backend/pkg/store"
)

// SearchHandler runs a hybrid search. Metadata filters apply to both
// retrieval branches before fusion.
func SearchHandler(c echo.Context) error {
	type searchRequest struct {
		Query          string                 `json:"query" validate:"required"`
		Limit          int                    `json:"limit"`
		ContentTypes   []domain.ContentType   `json:"content_types"`
		VehicleSystems []domain.VehicleSystem `json:"vehicle_systems"`
		IngestedAfter  *time.Time             `json:"ingested_after"`
		IngestedBefore *time.Time             `json:"ingested_before"`
		VectorWeight   float64                `json:"vector_weight"`
		LexicalWeight  float64                `json:"lexical_weight"`
	}

	type searchResponse struct {
		Message string            `json:"message,omitempty"`
		Hits    []query.SearchHit `json:"hits"`
		Count   int               `json:"count"`
	}

	data := new(searchRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
			Hits:    []query.SearchHit{},
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
			Hits:    []query.SearchHit{},
		})
	}
	for _, ct := range data.ContentTypes {
		if !ct.IsValid() {
			return c.JSON(http.StatusBadRequest, searchResponse{
				Message: fmt.Sprintf("Unknown content type %q", ct),
				Hits:    []query.SearchHit{},
			})
		}
	}
	for _, vs := range data.VehicleSystems {
		if !vs.IsValid() {
			return c.JSON(http.StatusBadRequest, searchResponse{
				Message: fmt.Sprintf("Unknown vehicle system %q", vs),
				Hits:    []query.SearchHit{},
			})
		}
	}

	filter := store.Filter{
		ContentTypes:   data.ContentTypes,
		VehicleSystems: data.VehicleSystems,
	}
	if data.IngestedAfter != nil {
		filter.IngestedAfter = *data.IngestedAfter
	}
	if data.IngestedBefore != nil {
		filter.IngestedBefore = *data.IngestedBefore
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	hits, err := app.Engine.HybridSearch(ctx, query.SearchRequest{
		Query:         data.Query,
		Limit:         data.Limit,
		Filter:        filter,
		VectorWeight:  data.VectorWeight,
		LexicalWeight: data.LexicalWeight,
	})
	if err != nil {
		logger.Error("Search failed", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
			Hits:    []query.SearchHit{},
		})
	}
	if hits == nil {
		hits = []query.SearchHit{}
	}

	return c.JSON(http.StatusOK, searchResponse{
		Hits:  hits,
		Count: len(hits),
	})
}

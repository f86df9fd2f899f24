package routes

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/drivetrace/backend/internal/server/middleware"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/store"
)

// RelationshipsHandler returns the entity's graph neighborhood up to the
// requested depth, optionally restricted to a comma-separated list of
// relation types.
func RelationshipsHandler(c echo.Context) error {
	type relationshipsParams struct {
		Entity string `query:"entity" validate:"required"`
		Depth  int    `query:"depth"`
		Types  string `query:"types"`
	}

	type relationshipsResponse struct {
		Message   string           `json:"message,omitempty"`
		Entity    string           `json:"entity,omitempty"`
		Neighbors []store.Neighbor `json:"neighbors"`
	}

	params := new(relationshipsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, relationshipsResponse{
			Message:   "Invalid request",
			Neighbors: []store.Neighbor{},
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, relationshipsResponse{
			Message:   "Invalid request",
			Neighbors: []store.Neighbor{},
		})
	}

	var relTypes []domain.RelationType
	if params.Types != "" {
		for _, raw := range strings.Split(params.Types, ",") {
			rt := domain.RelationType(strings.TrimSpace(raw))
			if !rt.IsValid() {
				return c.JSON(http.StatusBadRequest, relationshipsResponse{
					Message:   fmt.Sprintf("Unknown relation type %q", rt),
					Neighbors: []store.Neighbor{},
				})
			}
			relTypes = append(relTypes, rt)
		}
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	neighbors, err := app.Engine.Related(ctx, params.Entity, relTypes, params.Depth)
	if err != nil {
		logger.Error("Relationship query failed", "err", err, "entity", params.Entity)
		return c.JSON(http.StatusInternalServerError, relationshipsResponse{
			Message:   "Internal server error",
			Neighbors: []store.Neighbor{},
		})
	}
	if neighbors == nil {
		neighbors = []store.Neighbor{}
	}

	return c.JSON(http.StatusOK, relationshipsResponse{
		Entity:    params.Entity,
		Neighbors: neighbors,
	})
}

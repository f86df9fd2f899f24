package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/drivetrace/backend/internal/server/middleware"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
)

// TimelineHandler returns the timestamped relationship history for an
// entity inside an inclusive window. Window bounds are RFC 3339; a
// missing bound leaves that side open.
func TimelineHandler(c echo.Context) error {
	type timelineParams struct {
		Entity string `query:"entity" validate:"required"`
		Start  string `query:"start"`
		End    string `query:"end"`
	}

	type timelineResponse struct {
		Message string                 `json:"message,omitempty"`
		Entity  string                 `json:"entity,omitempty"`
		Events  []domain.TimelineEvent `json:"events"`
	}

	params := new(timelineParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, timelineResponse{
			Message: "Invalid request",
			Events:  []domain.TimelineEvent{},
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, timelineResponse{
			Message: "Invalid request",
			Events:  []domain.TimelineEvent{},
		})
	}

	var start, end time.Time
	var err error
	if params.Start != "" {
		start, err = time.Parse(time.RFC3339, params.Start)
		if err != nil {
			return c.JSON(http.StatusBadRequest, timelineResponse{
				Message: "Invalid start timestamp, expected RFC 3339",
				Events:  []domain.TimelineEvent{},
			})
		}
	}
	if params.End != "" {
		end, err = time.Parse(time.RFC3339, params.End)
		if err != nil {
			return c.JSON(http.StatusBadRequest, timelineResponse{
				Message: "Invalid end timestamp, expected RFC 3339",
				Events:  []domain.TimelineEvent{},
			})
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return c.JSON(http.StatusBadRequest, timelineResponse{
			Message: "Window end precedes its start",
			Events:  []domain.TimelineEvent{},
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	events, err := app.Engine.Timeline(ctx, params.Entity, start, end)
	if err != nil {
		logger.Error("Timeline query failed", "err", err, "entity", params.Entity)
		return c.JSON(http.StatusInternalServerError, timelineResponse{
			Message: "Internal server error",
			Events:  []domain.TimelineEvent{},
		})
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}

	return c.JSON(http.StatusOK, timelineResponse{
		Entity: params.Entity,
		Events: events,
	})
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aditi-updates/session-agent/internal/core/domain"
	"github.com/aditi-updates/session-agent/internal/core/ports"
)

// VisibilityDispatcher is the interface the handler uses to enqueue events.
type VisibilityDispatcher interface {
	Enqueue(event ports.VisibilityEvent)
}

// VisibilityHandler ingests visibility transitions from the embedding shell.
type VisibilityHandler struct {
	dispatcher VisibilityDispatcher
}

func NewVisibilityHandler(dispatcher VisibilityDispatcher) *VisibilityHandler {
	return &VisibilityHandler{dispatcher: dispatcher}
}

// Receive handles POST /v1/visibility — enqueues one transition, returns 202.
func (h *VisibilityHandler) Receive(c echo.Context) error {
	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	h.dispatcher.Enqueue(ports.VisibilityEvent{
		TabID: req.TabID,
		State: domain.VisibilityState(req.State),
		At:    req.At,
		Route: req.Route,
	})
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "transition accepted"})
}

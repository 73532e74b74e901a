package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	mw "github.com/Skotchmaster/campus_events/internal/middleware"
	"github.com/Skotchmaster/campus_events/internal/service"
)

type AdminHTTP struct {
	Accounts *service.AccountService
}

type banRequest struct {
	Reason string     `json:"reason"`
	Until  *time.Time `json:"until"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func targetID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}

func (h *AdminHTTP) Ban(c echo.Context) error {
	target, err := targetID(c)
	if err != nil {
		return err
	}
	var req banRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	actor, _ := mw.IdentityFrom(c)
	if err := h.Accounts.Ban(c.Request().Context(), actor, target, req.Reason, req.Until); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) Unban(c echo.Context) error {
	target, err := targetID(c)
	if err != nil {
		return err
	}
	if err := h.Accounts.Unban(c.Request().Context(), target); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) ChangeRole(c echo.Context) error {
	target, err := targetID(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	actor, _ := mw.IdentityFrom(c)
	if err := h.Accounts.ChangeRole(c.Request().Context(), actor, target, req.Role); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

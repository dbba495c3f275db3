package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/httperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/settings", auth.RequireCapability(auth.CapManageSettings))
	g.GET("/roles", h.ListRoles)
	g.PUT("/roles/:role", h.UpdateRole)
	api.GET("/me", h.Me)
}

func (h *Handler) ListRoles(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httperr.From(err, nil)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateRole(c echo.Context) error {
	var rs RoleSetting
	if err := c.Bind(&rs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rs.RoleName = c.Param("role")
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.Update(c.Request().Context(), actor, &rs); err != nil {
		return httperr.From(err, []error{ErrNotFound})
	}
	return c.JSON(http.StatusOK, rs)
}

// Me reports the caller's identity and resolved capabilities.
func (h *Handler) Me(c echo.Context) error {
	a := auth.ActorFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":           a.ID,
		"roles":        a.Roles,
		"capabilities": a.Capabilities.List(),
	})
}

package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/platform/httperr"
)

type Handler struct {
	builder *Builder
	clock   func() time.Time
}

func NewHandler(builder *Builder, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{builder: builder, clock: clock}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Get)
}

// Get accepts ?as_of=YYYY-MM-DD and ?lookahead=N.
func (h *Handler) Get(c echo.Context) error {
	asOf, err := cases.AsOf(c, h.clock)
	if err != nil {
		return err
	}
	lookahead := -1
	if v := c.QueryParam("lookahead"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 365 {
			return echo.NewHTTPError(http.StatusBadRequest, "lookahead must be between 0 and 365")
		}
		lookahead = n
	}
	board, err := h.builder.Build(c.Request().Context(), asOf, lookahead)
	if err != nil {
		return httperr.From(err, nil)
	}
	return c.JSON(http.StatusOK, board)
}

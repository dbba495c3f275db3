package calllog

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/cases"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/httperr"
)

type Handler struct {
	svc   *Service
	clock func() time.Time
}

func NewHandler(svc *Service, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{svc: svc, clock: clock}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/cases/:id/calls", h.List)
	api.GET("/cases/:id/calls/summary", h.Summary)
	api.POST("/cases/:id/calls", h.LogCall, auth.RequireCapability(auth.CapNoteAdd))
	api.GET("/call-outcomes", h.Outcomes)
}

func mapErr(err error) error {
	return httperr.From(err, []error{cases.ErrNotFound})
}

func caseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) LogCall(c echo.Context) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Outcome Outcome    `json:"outcome"`
		Notes   string     `json:"notes"`
		TaskID  *uuid.UUID `json:"task_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l := &Log{CaseID: id, TaskID: req.TaskID, Outcome: req.Outcome, Notes: req.Notes}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.LogCall(c.Request().Context(), actor, l, h.clock()); err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) List(c echo.Context) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	logs, err := h.svc.List(c.Request().Context(), id)
	if err != nil {
		return mapErr(err)
	}
	if logs == nil {
		logs = []Log{}
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) Summary(c echo.Context) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, s)
}

// Outcomes lists the selectable outcomes with their labels.
func (h *Handler) Outcomes(c echo.Context) error {
	type item struct {
		Value  Outcome `json:"value"`
		Label  string  `json:"label"`
		Failed bool    `json:"failed"`
	}
	all := []Outcome{
		OutcomeConfirmedVisit, OutcomeUncertain, OutcomeNoAnswer, OutcomeSwitchedOff, OutcomeRejected,
		OutcomeInvalidNumber, OutcomeShifted, OutcomeDeclined, OutcomeRude, OutcomeCallBackLater,
	}
	out := make([]item, len(all))
	for i, o := range all {
		out[i] = item{Value: o, Label: o.Label(), Failed: o.Failed()}
	}
	return c.JSON(http.StatusOK, out)
}

package cases

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/domain/patient"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/httperr"
	"github.com/medtrack/medtrack/pkg/pagination"
)

type Handler struct {
	svc   *Service
	clock func() time.Time
}

// NewHandler builds the case API. clock supplies "today" unless a request
// overrides it with ?as_of=YYYY-MM-DD.
func NewHandler(svc *Service, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{svc: svc, clock: clock}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/cases", h.SearchCases)
	api.POST("/cases", h.CreateCase, auth.RequireCapability(auth.CapCaseCreate))
	api.GET("/cases/:id", h.GetCase)
	api.PUT("/cases/:id/pathway", h.UpdatePathway, auth.RequireCapability(auth.CapCaseEdit))
	api.PUT("/cases/:id/details", h.UpdateDetails, auth.RequireCapability(auth.CapCaseEdit))
	api.PUT("/cases/:id/awaiting", h.SetAwaiting, auth.RequireCapability(auth.CapCaseEdit))
	api.POST("/cases/:id/close", h.CloseCase, auth.RequireCapability(auth.CapCaseEdit))
	api.POST("/cases/:id/reopen", h.ReopenCase, auth.RequireCapability(auth.CapCaseEdit))
	api.GET("/cases/:id/tasks", h.ListTasks)
	api.POST("/cases/:id/tasks", h.AddTask, auth.RequireCapability(auth.CapTaskCreate))
	api.GET("/cases/:id/activity", h.ListActivity)
	api.POST("/cases/:id/notes", h.AddNote, auth.RequireCapability(auth.CapNoteAdd))
	api.POST("/tasks/:id/complete", h.CompleteTask, auth.RequireCapability(auth.CapTaskEdit))
	api.POST("/tasks/:id/miss", h.MissTask, auth.RequireCapability(auth.CapTaskEdit))
}

func mapErr(err error) error {
	return httperr.From(err, []error{ErrNotFound, ErrTaskNotFound, patient.ErrNotFound},
		ErrActiveCaseExists, ErrDuplicateTask)
}

// AsOf returns the as_of query date, or the clock's current day.
func AsOf(c echo.Context, clock func() time.Time) (time.Time, error) {
	if v := c.QueryParam("as_of"); v != "" {
		d, err := followup.ParseDate(v)
		if err != nil {
			return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "as_of must be YYYY-MM-DD")
		}
		return d, nil
	}
	return followup.Day(clock()), nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// caseView is the JSON shape of a case with its pathway fields in wire form.
// ANC cases also carry their gestation as of the request day.
type caseView struct {
	*Case
	PathwayFields followup.Envelope   `json:"pathway_fields"`
	Gestation     *followup.Gestation `json:"gestation,omitempty"`
	Bucket        followup.Bucket     `json:"bucket,omitempty"`
	Tasks         []followup.Task     `json:"tasks,omitempty"`
}

func viewOf(c *Case, asOf time.Time) caseView {
	return caseView{
		Case:          c,
		PathwayFields: followup.EnvelopeOf(c.Fields),
		Gestation:     followup.GestationOf(c.Fields, asOf),
	}
}

type createCaseRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	followup.Envelope
	Details
}

func (h *Handler) CreateCase(c echo.Context) error {
	asOf, err := AsOf(c, h.clock)
	if err != nil {
		return err
	}
	var req createCaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return httperr.From(followup.Invalid("patient_id", "patient_id is required"), nil)
	}
	fields, err := req.Envelope.Fields()
	if err != nil {
		return mapErr(err)
	}
	cs := &Case{PatientID: req.PatientID, Fields: fields}
	cs.applyDetails(req.Details)
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.CreateCase(c.Request().Context(), actor, cs, asOf); err != nil {
		return mapErr(err)
	}
	res, err := h.svc.Classify(c.Request().Context(), cs.ID, asOf)
	if err != nil {
		return mapErr(err)
	}
	v := viewOf(res.Case, asOf)
	v.Bucket, v.Tasks = res.Bucket, res.Tasks
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	asOf, err := AsOf(c, h.clock)
	if err != nil {
		return err
	}
	res, err := h.svc.Classify(c.Request().Context(), id, asOf)
	if err != nil {
		return mapErr(err)
	}
	v := viewOf(res.Case, asOf)
	v.Bucket, v.Tasks = res.Bucket, res.Tasks
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) SearchCases(c echo.Context) error {
	asOf, err := AsOf(c, h.clock)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := SearchFilter{
		Query:    c.QueryParam("q"),
		Status:   followup.CaseStatus(c.QueryParam("status")),
		Pathway:  followup.Pathway(c.QueryParam("pathway")),
		Assignee: c.QueryParam("assignee"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	for param, dst := range map[string]**time.Time{"due_start": &f.DueStart, "due_end": &f.DueEnd} {
		if v := c.QueryParam(param); v != "" {
			d, err := followup.ParseDate(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, param+" must be YYYY-MM-DD")
			}
			*dst = &d
		}
	}
	items, total, err := h.svc.SearchCases(c.Request().Context(), f)
	if err != nil {
		return mapErr(err)
	}
	views := make([]caseView, len(items))
	for i, cs := range items {
		views[i] = viewOf(cs, asOf)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

type pathwayResponse struct {
	caseView
	Superseded []followup.Task `json:"superseded"`
	Created    []followup.Task `json:"created"`
}

func (h *Handler) UpdatePathway(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	asOf, err := AsOf(c, h.clock)
	if err != nil {
		return err
	}
	var env followup.Envelope
	if err := c.Bind(&env); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fields, err := env.Fields()
	if err != nil {
		return mapErr(err)
	}
	actor := auth.ActorFromContext(c.Request().Context())
	cs, plan, err := h.svc.UpdatePathway(c.Request().Context(), actor, id, fields, asOf)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, pathwayResponse{caseView: viewOf(cs, asOf), Superseded: plan.Supersede, Created: plan.Create})
}

func (h *Handler) UpdateDetails(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var d Details
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	cs, err := h.svc.UpdateDetails(c.Request().Context(), actor, id, d, h.clock())
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, viewOf(cs, followup.Day(h.clock())))
}

func (h *Handler) SetAwaiting(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		Report *string `json:"report"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	cs, err := h.svc.SetAwaiting(c.Request().Context(), actor, id, req.Report, h.clock())
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, viewOf(cs, followup.Day(h.clock())))
}

func (h *Handler) CloseCase(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		Reason CloseReason `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	cs, err := h.svc.CloseCase(c.Request().Context(), actor, id, req.Reason, h.clock())
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, viewOf(cs, followup.Day(h.clock())))
}

func (h *Handler) ReopenCase(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	asOf, err := AsOf(c, h.clock)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c.Request().Context())
	cs, err := h.svc.ReopenCase(c.Request().Context(), actor, id, asOf)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, viewOf(cs, asOf))
}

func (h *Handler) ListTasks(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	all, _ := strconv.ParseBool(c.QueryParam("include_superseded"))
	tasks, err := h.svc.ListTasks(c.Request().Context(), id, all)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, tasks)
}

type addTaskRequest struct {
	Kind       string            `json:"kind"`
	DueDate    string            `json:"due_date"`
	Type       followup.TaskType `json:"task_type"`
	Note       string            `json:"note"`
	AssigneeID *string           `json:"assignee_id"`
}

func (h *Handler) AddTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req addTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	due, err := followup.ParseDate(req.DueDate)
	if err != nil {
		return mapErr(followup.Invalid("due_date", "due_date must be YYYY-MM-DD"))
	}
	t := &followup.Task{Kind: req.Kind, DueDate: due, Type: req.Type, Note: req.Note, AssigneeID: req.AssigneeID}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.AddTask(c.Request().Context(), actor, id, t, h.clock()); err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) CompleteTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	now := h.clock()
	if c.QueryParam("as_of") != "" {
		if now, err = AsOf(c, h.clock); err != nil {
			return err
		}
	}
	actor := auth.ActorFromContext(c.Request().Context())
	t, err := h.svc.CompleteTask(c.Request().Context(), actor, id, now)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) MissTask(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	now := h.clock()
	if c.QueryParam("as_of") != "" {
		if now, err = AsOf(c, h.clock); err != nil {
			return err
		}
	}
	actor := auth.ActorFromContext(c.Request().Context())
	t, err := h.svc.MissTask(c.Request().Context(), actor, id, req.Note, now)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListActivity(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListActivity(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AddNote(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req struct {
		Note   string     `json:"note"`
		TaskID *uuid.UUID `json:"task_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.AddNote(c.Request().Context(), actor, id, req.TaskID, req.Note, h.clock()); err != nil {
		return mapErr(err)
	}
	return c.NoContent(http.StatusCreated)
}

package scanrun

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/scanjob"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Handler exposes the scan run history.
type Handler struct {
	jobs *scanjob.Repository
}

// NewHandler creates a new scan run handler.
func NewHandler(jobs *scanjob.Repository) *Handler {
	return &Handler{jobs: jobs}
}

// Register registers scan history routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/last", h.Last)
	g.GET("/:id", h.Get)
}

// List returns scan runs, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "scanrun_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	jobs, err := h.jobs.List(ctx, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, jobs)
}

// Last returns the most recent completed scan, or 204 when none exists
func (h *Handler) Last(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "scanrun_handler.Last")
	defer span.End()

	job, err := h.jobs.LastCompleted(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return c.NoContent(http.StatusNoContent)
	}

	return c.JSON(http.StatusOK, job)
}

// Get returns a single scan run by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "scanrun_handler.Get")
	defer span.End()

	job, err := h.jobs.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

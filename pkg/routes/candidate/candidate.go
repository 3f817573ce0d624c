package candidate

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/candidate"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/manualimport"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Handler handles match candidate endpoints.
type Handler struct {
	candidates *candidate.Repository
	resolver   *manualimport.Resolver
	emitter    *events.Emitter
	logger     ectologger.Logger
}

// NewHandler creates a new candidate handler. emitter may be nil.
func NewHandler(candidates *candidate.Repository, resolver *manualimport.Resolver, emitter *events.Emitter, logger ectologger.Logger) *Handler {
	return &Handler{
		candidates: candidates,
		resolver:   resolver,
		emitter:    emitter,
		logger:     logger,
	}
}

// Register registers candidate routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/import", h.Import)
	g.POST("/:id/reject", h.Reject)
}

// List lists candidates, optionally filtered by status
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.List")
	defer span.End()

	status := c.QueryParam("status")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	candidates, err := h.candidates.List(ctx, status, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidates)
}

// Get returns a single candidate by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Get")
	defer span.End()

	result, err := h.candidates.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Import resolves a candidate under operator control
func (h *Handler) Import(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Import")
	defer span.End()

	userID := appcontext.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity is required")
	}

	var req manualimport.Request
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req.CandidateID = c.Param("id")
	req.ResolvedBy = userID

	result, err := h.resolver.Import(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Reject marks a pending candidate as rejected
func (h *Handler) Reject(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "candidate_handler.Reject")
	defer span.End()

	userID := appcontext.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity is required")
	}

	id := c.Param("id")
	if err := h.candidates.UpdateStatus(ctx, id, models.CandidateStatusRejected, userID); err != nil {
		return err
	}

	if h.emitter.Enabled() {
		rejected, err := h.candidates.GetByID(ctx, id)
		if err == nil {
			if err := h.emitter.EmitCandidateResolved(ctx, rejected); err != nil {
				h.logger.WithContext(ctx).WithError(err).Warn("Candidate event emission failed")
			}
		}
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": id,
		"user_id":      userID,
	}).Info("Rejected candidate")

	return c.JSON(http.StatusOK, map[string]string{"status": "rejected"})
}

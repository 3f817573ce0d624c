package contact

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Handler serves the contact records owned by the caller's organization.
type Handler struct {
	contacts *contact.Repository
}

// NewHandler creates a new contact handler.
func NewHandler(contacts *contact.Repository) *Handler {
	return &Handler{contacts: contacts}
}

// Register registers contact routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// List returns the organization's live contacts, optionally only those
// changed after a point in time
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "contact_handler.List")
	defer span.End()

	organizationID := appcontext.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	var since time.Time
	if raw := c.QueryParam("changed_since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "changed_since must be RFC3339")
		}
		since = parsed
	}

	contacts, err := h.contacts.ListChangedSince(ctx, organizationID, since, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, contacts)
}

// Get returns a single contact by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "contact_handler.Get")
	defer span.End()

	result, err := h.contacts.GetByID(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

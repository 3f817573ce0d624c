package network

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Handler serves contact network queries backed by the graph projection.
type Handler struct {
	network *graph.NetworkService
	logger  ectologger.Logger
}

// NewHandler creates a new network handler
func NewHandler(network *graph.NetworkService, logger ectologger.Logger) *Handler {
	return &Handler{
		network: network,
		logger:  logger,
	}
}

// Register registers the network routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id/network", h.ContactNetwork)
}

func (h *Handler) requireNetwork(c echo.Context) (*graph.NetworkService, error) {
	// Prefer the explicitly provided service, but fall back to DI-from-context.
	if h != nil && h.network != nil {
		return h.network, nil
	}

	ctx := c.Request().Context()
	_, svc, err := ectoinject.GetContext[*graph.NetworkService](ctx)
	if err != nil || svc == nil {
		// 503 because the graph store is an optional backend.
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "contact network service unavailable")
	}
	return svc, nil
}

// ContactNetwork returns the neighborhood of an imported contact
func (h *Handler) ContactNetwork(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "network_handler.ContactNetwork")
	defer span.End()

	organizationID := appcontext.GetOrganizationID(ctx)
	if organizationID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "organization_id is required")
	}

	svc, err := h.requireNetwork(c)
	if err != nil {
		return err
	}

	hops, _ := strconv.Atoi(c.QueryParam("hops"))

	result, err := svc.ContactNetwork(ctx, organizationID, c.Param("id"), hops)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

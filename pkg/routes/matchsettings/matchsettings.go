package matchsettings

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/settings"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// UpdateRequest is the full settings document plus the version the caller
// read. A stale version is rejected so concurrent editors never silently
// overwrite each other.
type UpdateRequest struct {
	UseAiMerge                bool    `json:"useAiMerge"`
	AutoScanEnabled           bool    `json:"autoScanEnabled"`
	AutoScanIntervalMinutes   int     `json:"autoScanIntervalMinutes" validate:"min=1"`
	AutoImportEnabled         bool    `json:"autoImportEnabled"`
	AutoImportIntervalMinutes int     `json:"autoImportIntervalMinutes" validate:"min=1"`
	AutoImportMinScore        float64 `json:"autoImportMinScore" validate:"gte=0,lte=1"`
	Version                   int     `json:"version" validate:"min=0"`
}

// Handler serves the global matching settings document.
type Handler struct {
	settings *settings.Repository
}

// NewHandler creates a new settings handler.
func NewHandler(settingsRepo *settings.Repository) *Handler {
	return &Handler{settings: settingsRepo}
}

// Register registers the settings routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/matching", h.Get)
	g.PUT("/matching", h.Update)
}

// Get returns the current matching settings
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchsettings_handler.Get")
	defer span.End()

	current, err := h.settings.Get(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, current)
}

// Update replaces the matching settings document
func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "matchsettings_handler.Update")
	defer span.End()

	userID := appcontext.GetUserID(ctx)
	if userID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "user identity is required")
	}

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := h.settings.Update(ctx, &models.MatchingSettings{
		UseAiMerge:                req.UseAiMerge,
		AutoScanEnabled:           req.AutoScanEnabled,
		AutoScanIntervalMinutes:   req.AutoScanIntervalMinutes,
		AutoImportEnabled:         req.AutoImportEnabled,
		AutoImportIntervalMinutes: req.AutoImportIntervalMinutes,
		AutoImportMinScore:        req.AutoImportMinScore,
		Version:                   req.Version,
	}, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

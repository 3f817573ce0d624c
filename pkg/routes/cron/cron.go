package cron

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/settings"
	"github.com/Ramsey-B/clover/pkg/autoimport"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scan"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Handler serves the scheduled-invocation endpoints. The external scheduler
// fires on a fixed beat; whether work actually happens is decided here and
// in the engines from the persisted settings.
type Handler struct {
	scanner  *scan.Scanner
	importer *autoimport.Engine
	settings *settings.Repository
	logger   ectologger.Logger
}

// NewHandler creates a new cron handler.
func NewHandler(scanner *scan.Scanner, importer *autoimport.Engine, settingsRepo *settings.Repository, logger ectologger.Logger) *Handler {
	return &Handler{
		scanner:  scanner,
		importer: importer,
		settings: settingsRepo,
		logger:   logger,
	}
}

// Register registers the cron routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/scan", h.Scan)
	g.POST("/auto-import", h.AutoImport)
}

// Scan runs a full contact scan when auto scan is enabled
func (h *Handler) Scan(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "cron_handler.Scan")
	defer span.End()

	current, err := h.settings.Get(ctx)
	if err != nil {
		return err
	}
	if !current.AutoScanEnabled {
		h.logger.WithContext(ctx).Info("Auto scan is disabled, skipping scheduled scan")
		return c.JSON(http.StatusOK, map[string]string{"status": "disabled"})
	}

	result, err := h.scanner.Run(ctx, models.ScanTriggerCron)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	next := now.Add(time.Duration(current.AutoScanIntervalMinutes) * time.Minute)
	if err := h.settings.RecordAutoScanRun(ctx, now, next); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to record auto scan run")
	}

	return c.JSON(http.StatusOK, result)
}

// AutoImport imports every candidate above the configured score
func (h *Handler) AutoImport(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "cron_handler.AutoImport")
	defer span.End()

	stats, err := h.importer.Run(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

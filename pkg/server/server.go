// Package server assembles the echo application: middleware chain, route
// groups and the operational endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/candidate"
	"github.com/Ramsey-B/clover/pkg/routes/contact"
	"github.com/Ramsey-B/clover/pkg/routes/cron"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/matchsettings"
	"github.com/Ramsey-B/clover/pkg/routes/network"
	"github.com/Ramsey-B/clover/pkg/routes/scanrun"
)

// Handlers collects the route handlers the server mounts.
type Handlers struct {
	Candidates *candidate.Handler
	Contacts   *contact.Handler
	ScanRuns   *scanrun.Handler
	Cron       *cron.Handler
	Settings   *matchsettings.Handler
	Network    *network.Handler
	Health     *health.Checker
}

// Server wraps the echo instance and its configuration.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger ectologger.Logger
}

// New builds the echo application with the full middleware chain and all
// route groups mounted.
func New(cfg *config.Config, logger ectologger.Logger, handlers Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	api := e.Group("/api/v1")
	handlers.Candidates.Register(api.Group("/candidates"))
	handlers.ScanRuns.Register(api.Group("/scans"))
	handlers.Settings.Register(api.Group("/settings"))

	contacts := api.Group("/contacts")
	handlers.Contacts.Register(contacts)
	handlers.Network.Register(contacts)
	handlers.Cron.Register(api.Group("/cron", middleware.CronAuth(logger, cfg.CronSecret)))

	handlers.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Infof("Starting %s on %s", s.cfg.AppName, addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

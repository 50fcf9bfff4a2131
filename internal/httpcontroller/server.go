// Package httpcontroller wires the echo server: middleware, templates,
// routes and error handling. Handlers live in the handlers subpackage.
package httpcontroller

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/httpcontroller/handlers"
	"github.com/tphakala/pneumodetect/internal/intake"
	"github.com/tphakala/pneumodetect/internal/logger"
	"github.com/tphakala/pneumodetect/internal/observability"
	"github.com/tphakala/pneumodetect/internal/security"
)

// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Deps are the collaborators of the server. All are required.
type Deps struct {
	Settings   *conf.Settings
	DS         datastore.Interface
	Classifier handlers.Classifier
	Uploads    *intake.Store
	Accounts   *security.Accounts
	Sessions   *security.Sessions
	Metrics    *observability.Metrics
	Backend    string // model runtime name for /healthz
}

// Server is the web front.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings
	Handlers *handlers.Handlers
	Metrics  *observability.Metrics
	log      logger.Logger
}

// New builds a fully configured server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		Echo:     echo.New(),
		Settings: deps.Settings,
		Metrics:  deps.Metrics,
		log:      GetLogger(),
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true

	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}
	s.Echo.Renderer = renderer

	s.Handlers = handlers.New(deps.DS, deps.Settings, deps.Classifier, deps.Uploads,
		deps.Accounts, deps.Sessions, deps.Metrics, deps.Backend)

	s.initLogger()
	s.Echo.HTTPErrorHandler = s.handleError
	s.configureMiddleware()
	s.initRoutes()
	return s, nil
}

func (d *Deps) validate() error {
	missing := ""
	switch {
	case d.Settings == nil:
		missing = "settings"
	case d.DS == nil:
		missing = "datastore"
	case d.Classifier == nil:
		missing = "classifier"
	case d.Uploads == nil:
		missing = "upload store"
	case d.Accounts == nil:
		missing = "accounts"
	case d.Sessions == nil:
		missing = "sessions"
	case d.Metrics == nil:
		missing = "metrics"
	}
	if missing == "" {
		return nil
	}
	return errors.Newf("http server requires %s", missing).
		Component("httpcontroller").
		Category(errors.CategoryConfiguration).
		Build()
}

// Start listens on the configured port and blocks until the server stops.
// A clean Shutdown returns nil.
func (s *Server) Start() error {
	addr := net.JoinHostPort("", s.Settings.WebServer.Port)
	s.Echo.Server.ReadTimeout = s.Settings.WebServer.ReadTimeout
	s.Echo.Server.WriteTimeout = s.Settings.WebServer.WriteTimeout

	s.log.Info("web server listening", logger.String("addr", addr))
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("httpcontroller").
			Category(errors.CategoryHTTP).
			Context("addr", addr).
			Build()
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	return s.Echo.Shutdown(ctx)
}

// handleError is the echo HTTPErrorHandler.
func (s *Server) handleError(err error, c echo.Context) {
	if herr := s.Handlers.HandleError(err, c); herr != nil {
		s.log.Error("failed to render error response", logger.Error(herr), logger.String("path", c.Request().URL.Path))
		if !c.Response().Committed {
			_ = c.String(handlers.StatusFor(err), http.StatusText(handlers.StatusFor(err)))
		}
	}
}

// Package stub is a canned analysis backend for local development and
// tests. It stores uploads in memory and answers summaries from stored
// metadata only; no statistics are computed.
package stub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/genstats/client/internal/api"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Route names accepted by Fail.
const (
	RouteUpload   = "upload"
	RouteSummary  = "summary"
	RouteInsights = "insights"
	RouteHealth   = "health"
)

// Responder produces the insight text for a query.
type Responder func(query string) string

// Options configures a Server.
type Options struct {
	Version        string
	BodyLimit      string   // echo size string, e.g. "512M"
	AllowOrigins   []string // empty disables CORS
	RequestLogging bool
	Responder      Responder
	Logger         *slog.Logger
}

// Server is the stub backend.
type Server struct {
	e        *echo.Echo
	registry *Registry
	hub      *Hub
	version  string
	respond  Responder
	log      *slog.Logger

	mu       sync.RWMutex
	failures map[string]int
	srv      *http.Server
}

// New builds the server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stub")

	s := &Server{
		e:        echo.New(),
		registry: NewRegistry(),
		hub:      NewHub(logger),
		version:  opts.Version,
		respond:  opts.Responder,
		log:      logger,
		failures: make(map[string]int),
	}
	if s.version == "" {
		s.version = "dev"
	}
	if s.respond == nil {
		s.respond = defaultResponder
	}

	s.e.HideBanner = true
	s.e.HidePort = true
	s.setupMiddleware(opts)
	s.registerRoutes()
	return s
}

func (s *Server) setupMiddleware(opts Options) {
	s.e.HTTPErrorHandler = ErrorHandler

	s.e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		TargetHeader: api.HeaderRequestID,
	}))

	if opts.RequestLogging {
		s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == api.HealthPath
			},
			LogMethod:    true,
			LogURI:       true,
			LogStatus:    true,
			LogLatency:   true,
			LogRequestID: true,
			LogError:     true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				s.log.Info("request",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency", v.Latency,
					"request_id", v.RequestID)
				return nil
			},
		}))
	}

	s.e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if opts.BodyLimit != "" {
		s.e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if len(opts.AllowOrigins) > 0 {
		s.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, api.HeaderRequestID},
		}))
	}
}

func (s *Server) registerRoutes() {
	s.e.GET(api.HealthPath, s.handleHealth)
	s.e.POST(api.UploadPath, s.handleUpload)
	s.e.GET(api.SummaryPath+":id", s.handleSummary)
	s.e.POST(api.InsightPath, s.handleInsights)
	s.e.POST(api.AliasInsightPath, s.handleInsights)
	s.e.GET(api.RealtimePath, s.hub.HandleWebSocket)
}

// ServeHTTP lets the server be mounted in httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Registry exposes the dataset registry.
func (s *Server) Registry() *Registry { return s.registry }

// Hub exposes the realtime hub.
func (s *Server) Hub() *Hub { return s.hub }

// Fail makes route answer with status until cleared with status 0.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

func (s *Server) injected(route string) error {
	s.mu.RLock()
	status, ok := s.failures[route]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return api.NewStatusError(status, fmt.Sprintf("injected failure on %s", route))
}

// Start listens on addr and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string, readTimeout, writeTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Handler:      s.e,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	srv := s.srv
	s.mu.Unlock()

	s.log.Info("stub backend listening", "addr", ln.Addr().String(), "version", s.version)
	return srv.Serve(ln)
}

// Shutdown stops accepting requests and disconnects realtime clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()

	s.hub.CloseAll()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func defaultResponder(query string) string {
	q := strings.TrimSpace(query)
	return fmt.Sprintf("The stub backend has no insight engine. Received a %d-character query: %q", len(q), q)
}

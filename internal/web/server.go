// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/vidtube/vidtube/internal/observability"
)

// DefaultBodyLimit caps request bodies.
const DefaultBodyLimit int64 = 16 << 10

// Config configures the API server.
type Config struct {
	Addr       string
	BasePath   string
	CORSOrigin string
	BodyLimit  int64
	Cookie     CookieConfig
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Server serves the user API.
type Server struct {
	addr       string
	logger     *slog.Logger
	engine     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer builds the router. A nil Logger falls back to slog.Default and
// a nil Metrics disables recording.
func NewServer(svc AuthService, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	base := "/" + strings.Trim(cfg.BasePath, "/")

	h := &handlers{
		svc:     svc,
		cookies: cfg.Cookie,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		Recovery(cfg.Logger),
		RequestID(),
		AccessLog(cfg.Logger, cfg.Metrics),
		CORS(cfg.CORSOrigin),
		BodyLimit(cfg.BodyLimit),
	)
	engine.NoRoute(func(c *gin.Context) { abort(c, http.StatusNotFound, "route not found") })
	engine.NoMethod(func(c *gin.Context) { abort(c, http.StatusMethodNotAllowed, "method not allowed") })

	users := engine.Group(base)
	users.POST("/register", h.register)
	users.POST("/login", h.login)
	users.POST("/refresh-token", h.refresh)

	gated := users.Group("", AuthGate(svc, cfg.Logger, cfg.Metrics))
	gated.POST("/logout", h.logout)
	gated.POST("/change-password", h.changePassword)
	gated.PATCH("/update-account", h.updateAccount)
	gated.GET("/current-user", h.currentUser)

	return &Server{
		addr:   cfg.Addr,
		logger: cfg.Logger,
		engine: engine,
	}, nil
}

// Handler returns the router for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. The returned channel receives any error from the
// HTTP server after it starts and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop waits for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listening address, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

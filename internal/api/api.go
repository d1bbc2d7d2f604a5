// Package api provides the HTTP control surface of the wake daemon.
//
// The shape follows a cloud-function device: state and address are read as
// variables, and wakeHost, pingHost, cancel and shutdownHost are called as
// functions taking a single string argument and returning 1 or 0.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/fgeck/gowol-homelab/internal/address"
	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/fgeck/gowol-homelab/internal/wake"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout = 30 * time.Second
	stopTimeout     = 5 * time.Second
)

// Runner is the part of the wake orchestrator the API drives.
type Runner interface {
	Wake(param string) (wake.Session, error)
	Ping(param string) (wake.Session, error)
	Cancel() bool
	Address() string
	Snapshot() wake.Session
	Subscribe() (<-chan wake.Session, func())
}

// Shutdowner powers off a host given by address.
type Shutdowner interface {
	Shutdown(ctx context.Context, host string) error
}

// Server represents the HTTP API server.
type Server struct {
	cfg      models.APIConfig
	mode     address.Mode
	runner   Runner
	shutdown Shutdowner // nil when ssh_shutdown is not configured
	limiter  *rate.Limiter
	logger   zerolog.Logger
	router   *gin.Engine
}

// New creates a new API server. shutdown may be nil.
func New(logger zerolog.Logger, cfg models.APIConfig, mode address.Mode, runner Runner, shutdown Shutdowner) *Server {
	gin.SetMode(gin.ReleaseMode)

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		cfg:      cfg,
		mode:     mode,
		runner:   runner,
		shutdown: shutdown,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		router:   gin.New(),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/variables/state", s.stateHandler)
		v1.GET("/variables/address", s.addressHandler)
		v1.GET("/session", s.sessionHandler)
		v1.GET("/events", s.eventsHandler)

		functions := v1.Group("/functions", s.rateLimitMiddleware())
		functions.POST("/wakeHost", s.wakeHostHandler)
		functions.POST("/pingHost", s.pingHostHandler)
		functions.POST("/cancel", s.cancelHandler)
		functions.POST("/shutdownHost", s.shutdownHostHandler)
	}
}

// Run serves until ctx is cancelled, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open event streams let go.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.cfg.Listen).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	s.logger.Info().Msg("API server stopped")
	return nil
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request completed")
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			s.logger.Warn().Str("path", c.Request.URL.Path).Msg("function call rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, FunctionResponse{
				Name:  path.Base(c.Request.URL.Path),
				Error: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "gowol-homelab",
	})
}

func (s *Server) stateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, VariableResponse{Name: "state", Result: s.runner.Snapshot().Status})
}

func (s *Server) addressHandler(c *gin.Context) {
	c.JSON(http.StatusOK, VariableResponse{Name: "address", Result: s.runner.Address()})
}

func (s *Server) sessionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionView(s.runner.Snapshot()))
}

// eventsHandler streams the current session followed by every change.
func (s *Server) eventsHandler(c *gin.Context) {
	updates, unsubscribe := s.runner.Subscribe()
	defer unsubscribe()

	c.SSEvent("status", newSessionView(s.runner.Snapshot()))
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case sess, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("status", newSessionView(sess))
			return true
		}
	})
}

func (s *Server) wakeHostHandler(c *gin.Context) {
	s.startCycle(c, "wakeHost", s.runner.Wake)
}

func (s *Server) pingHostHandler(c *gin.Context) {
	s.startCycle(c, "pingHost", s.runner.Ping)
}

func (s *Server) startCycle(c *gin.Context, name string, start func(string) (wake.Session, error)) {
	arg, ok := bindArg(c, name)
	if !ok {
		return
	}

	sess, err := start(arg)
	if err != nil {
		fail(c, name, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, FunctionResponse{Name: name, ReturnValue: 1, Cycle: sess.Cycle})
}

func (s *Server) cancelHandler(c *gin.Context) {
	if !s.runner.Cancel() {
		fail(c, "cancel", http.StatusConflict, errors.New("no wake cycle is running"))
		return
	}
	c.JSON(http.StatusOK, FunctionResponse{Name: "cancel", ReturnValue: 1})
}

func (s *Server) shutdownHostHandler(c *gin.Context) {
	const name = "shutdownHost"
	if s.shutdown == nil {
		fail(c, name, http.StatusNotImplemented, errors.New("ssh_shutdown is not configured"))
		return
	}

	arg, ok := bindArg(c, name)
	if !ok {
		return
	}
	ip, err := address.ParseIPv4(arg, s.mode)
	if err != nil {
		fail(c, name, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), shutdownTimeout)
	defer cancel()
	if err := s.shutdown.Shutdown(ctx, ip.String()); err != nil {
		s.logger.Error().Err(err).Str("target", ip.String()).Msg("remote shutdown failed")
		fail(c, name, http.StatusBadGateway, err)
		return
	}

	c.JSON(http.StatusOK, FunctionResponse{Name: name, ReturnValue: 1})
}

func bindArg(c *gin.Context, name string) (string, bool) {
	var req FunctionRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, name, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return "", false
	}
	return req.Arg, true
}

func fail(c *gin.Context, name string, status int, err error) {
	c.JSON(status, FunctionResponse{Name: name, ReturnValue: 0, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, address.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, wake.ErrBusy), errors.Is(err, wake.ErrNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

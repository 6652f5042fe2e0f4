// Package httpstatus serves health, readiness, stats and version endpoints with gin.
package httpstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/afkbot/core/buildinfo"
	"github.com/m3rciful/afkbot/core/logger"
)

const (
	readyTimeout    = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the status server.
type Options struct {
	Listen string
	// Ready is checked by /readyz; nil always reports ready.
	Ready Pinger
	// Stats renders the /stats body; nil disables the route.
	Stats func(ctx context.Context) (any, error)
}

// Server is the HTTP status server.
type Server struct {
	opts   Options
	engine *gin.Engine
}

// New builds the router. It does not start listening.
func New(opts Options) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{opts: opts, engine: r}
	r.GET("/healthz", s.health)
	r.GET("/readyz", s.ready)
	r.GET("/version", s.version)
	if opts.Stats != nil {
		r.GET("/stats", s.stats)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := s.opts.Ready.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) stats(c *gin.Context) {
	body, err := s.opts.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, buildinfo.Current())
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		code := c.Writer.Status()
		level := slog.LevelDebug
		if code >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.LogEvent(c.Request.Context(), logger.HTTP, level, "http.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("code", code),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
}

// Run listens on opts.Listen until ctx is done, then shuts down gracefully.
// An empty listen address makes Run block until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.opts.Listen == "" {
		<-ctx.Done()
		return nil
	}
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("status server: listen %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.listen", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server: shutdown: %w", err)
	}
	logger.LogEvent(shutdownCtx, logger.HTTP, slog.LevelInfo, "http.stopped")
	return nil
}

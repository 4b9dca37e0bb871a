// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minirag/internal/config"
	"minirag/internal/domain"
)

// Version is reported by /health.
const Version = "1.0.0"

const serviceName = "minirag"

// Server is the HTTP front of a domain.Pipeline.
type Server struct {
	e        *echo.Echo
	pipeline domain.Pipeline
	logger   *log.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger   *log.Logger
	gatherer prometheus.Gatherer
}

// WithLogger sets the request/error logger.
func WithLogger(l *log.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) { o.gatherer = g }
}

// New builds the echo instance with routes and middleware.
func New(pipeline domain.Pipeline, cfg config.ServerConfig, opts ...Option) *Server {
	o := serverOptions{gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{e: e, pipeline: pipeline, logger: o.logger}

	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.handleError
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	if cfg.RequestTimeoutSecs > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
		}))
	}

	e.GET("/", s.root)
	e.GET("/health", s.health)
	e.POST("/ingest", s.ingest)
	e.POST("/query", s.query)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		errCh <- s.e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	}
}

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUngroundedCitation):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, domain.ErrRerankUnavailable),
		errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	code := StatusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]any{"error": msg})
	}
}

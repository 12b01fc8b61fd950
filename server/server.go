// Package server exposes graphview over HTTP: queries against a graph server,
// neighborhood expansion, connection tests and offline normalization of raw
// payloads.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	graphview "github.com/saulfrancisco-ruizacevedo/go-graphview"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/config"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/metrics"
)

// DialFunc opens a runner for one request. graphview.Dial is the default.
type DialFunc func(ctx context.Context, conn graphview.Connection, opts graphview.DialOptions) (graphview.QueryRunner, error)

// Server is the graphview HTTP service.
type Server struct {
	cfg      *config.Config
	dial     DialFunc
	breakers *graphview.BreakerSet
	metrics  *metrics.Collector
	validate *validator.Validate
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithDialer replaces the function used to reach graph servers.
func WithDialer(dial DialFunc) Option {
	return func(s *Server) { s.dial = dial }
}

// WithMetrics sets the metrics collector. By default the server creates its own.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// New creates a Server and wires its routes.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		dial:     graphview.Dial,
		breakers: graphview.NewBreakerSet(cfg.BreakerSettings()),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector("graphview")
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger)
	router.Use(s.metrics.Middleware)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", s.health)
	router.Handle("/metrics", s.metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Post("/gremlin", s.query)
		r.Post("/expand", s.expand)
		r.Post("/test-connection", s.testConnection)
		r.Post("/normalize", s.normalize)
	})

	return router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully,
// waiting up to the configured shutdown timeout for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("HTTP Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", chimiddleware.GetReqID(r.Context()),
		)
	})
}

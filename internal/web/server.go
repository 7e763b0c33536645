// Package web provides the preview HTTP service: clients upload a record file
// and get back its detected format and encoding with a sample of records,
// without anything being sent to the document API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/docstream/internal/config"
	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/metrics"
	"github.com/JonMunkholm/docstream/internal/stream"
	mw "github.com/JonMunkholm/docstream/internal/web/middleware"
)

// Server is the HTTP server for the preview service.
type Server struct {
	cfg        config.PreviewConfig
	router     *chi.Mux
	server     *http.Server
	limiter    *Limiter
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	decodeOpts []stream.Option
	encodings  []string
}

// Option configures a Server.
type Option func(*Server)

// WithEncodings sets the ordered CSV candidates used for previews.
func WithEncodings(encs []stream.Encoding) Option {
	return func(s *Server) {
		s.encodings = stream.Names(encs)
		s.decodeOpts = append(s.decodeOpts, stream.WithEncodings(encs...))
	}
}

// WithDecodeOptions passes further options to the sniffer and decoder.
func WithDecodeOptions(opts ...stream.Option) Option {
	return func(s *Server) {
		s.decodeOpts = append(s.decodeOpts, opts...)
	}
}

// WithMetrics records preview metrics in m and serves g at /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// NewServer creates a new Server instance.
func NewServer(cfg config.PreviewConfig, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		limiter:   NewLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		encodings: append([]string(nil), stream.DefaultEncodingNames...),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.RateLimit > 0 {
		limiter := newRateLimiter(s.cfg.RateLimit, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.APIKeys))

		r.Post("/preview", s.handlePreview)
		r.Get("/encodings", s.handleEncodings)
	})
}

// Start listens on the configured address and blocks until the server
// stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("server starting", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for running previews.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if drainErr := s.limiter.WaitForDrain(ctx); drainErr != nil {
		err = errors.Join(err, drainErr)
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Limiter returns the preview limiter.
func (s *Server) Limiter() *Limiter {
	return s.limiter
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

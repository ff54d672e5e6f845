// Package server exposes the generation service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/glyphd/internal/orchestrator"
	"github.com/Norgate-AV/glyphd/internal/params"
)

// DefaultRetryAfter is sent with 503 responses on a lock conflict
const DefaultRetryAfter = 5 * time.Second

// shutdownTimeout bounds how long Run waits for in-flight requests. Builds
// still running after that finish in the background.
const shutdownTimeout = 30 * time.Second

// Generator serves generation requests
type Generator interface {
	Generate(ctx context.Context, req *params.Request) (*orchestrator.Outcome, error)
}

// FontLister returns the output of the font discovery command
type FontLister interface {
	List(ctx context.Context) ([]byte, error)
}

// Config holds the server dependencies
type Config struct {
	Addr      string
	Generator Generator
	Fonts     FontLister
	Logger    *slog.Logger

	// FontDirs restricts fontfile requests to these directories when set
	FontDirs []string

	// RetryAfter is advertised on lock conflicts
	RetryAfter time.Duration
}

// Server is the glyphd HTTP server
type Server struct {
	addr       string
	generator  Generator
	fonts      FontLister
	logger     *slog.Logger
	fontDirs   []string
	retryAfter time.Duration
	router     chi.Router
}

// New creates a Server and its routes
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}

	s := &Server{
		addr:       cfg.Addr,
		generator:  cfg.Generator,
		fonts:      cfg.Fonts,
		logger:     cfg.Logger,
		fontDirs:   cfg.FontDirs,
		retryAfter: cfg.RetryAfter,
	}

	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/generate", s.handleGenerate)
	r.Get("/fonts", s.handleFonts)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", slog.String("addr", s.addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// accessLog logs one line per request
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("cache", ww.Header().Get("X-Glyphd-Cache")),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

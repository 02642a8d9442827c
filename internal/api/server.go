// Package api serves the monitoring HTTP API: target listing, on-demand
// crawls and history views.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/pagewatch/internal/metrics"
	"github.com/FranksOps/pagewatch/internal/storage"
	"github.com/FranksOps/pagewatch/internal/target"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Crawler runs one fetch-and-record cycle for a target.
type Crawler interface {
	Run(ctx context.Context, t target.Target) (*storage.HistoryEntry, error)
}

// Config wires a Server.
type Config struct {
	Registry *target.Registry
	History  *storage.History
	Crawler  Crawler
	Logger   *slog.Logger
	// CORSOrigins defaults to every origin.
	CORSOrigins []string
}

// Server holds the API dependencies.
type Server struct {
	registry *target.Registry
	history  *storage.History
	crawler  Crawler
	logger   *slog.Logger
	origins  []string
	now      func() time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{
		registry: cfg.Registry,
		history:  cfg.History,
		crawler:  cfg.Crawler,
		logger:   cfg.Logger,
		origins:  cfg.CORSOrigins,
		now:      time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/urls", s.handleURLs)
		r.Post("/crawl", s.handleCrawl)
		r.Get("/history/{id}", s.handleHistory)
		r.Get("/history/{id}/summary", s.handleSummary)
	})
	r.Get("/history/{id}", s.handleHistoryPage)
	r.Handle("/metrics", metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found", "path": r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

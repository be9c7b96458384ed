// Package web provides the HTTP API for task boards.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/madhatter5501/taskboard"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the server.
type Options struct {
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Registry     *prometheus.Registry // Nil creates a private registry
}

// Server is the task board API server.
type Server struct {
	svc     *taskboard.Service
	logger  *slog.Logger
	opts    Options
	server  *http.Server
	handler http.Handler
	metrics *metrics
	events  *broker
}

// NewServer creates a server for svc and builds its routes.
func NewServer(svc *taskboard.Service, logger *slog.Logger, opts Options) *Server {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		svc:     svc,
		logger:  logger,
		opts:    opts,
		metrics: newMetrics(opts.Registry),
		events:  newBroker(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.withLogging)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		// Boards
		r.Get("/boards", s.apiListBoards)
		r.Post("/boards", s.apiCreateBoard)
		r.Get("/boards/{id}", s.apiGetBoard)
		r.Post("/boards/{id}/repair", s.apiRepairBoard)
		r.Post("/boards/{id}/columns", s.apiCreateColumn)

		// Cards
		r.Post("/cards", s.apiCreateCard)
		r.Get("/cards/{id}", s.apiGetCard)
		r.Patch("/cards/{id}", s.apiUpdateCard)
		r.Put("/cards/{id}", s.apiUpdateCard)
		r.Patch("/cards/{id}/move", s.apiMoveCard)
		r.Delete("/cards/{id}", s.apiDeleteCard)

		// Columns
		r.Get("/columns", s.apiListColumns)
		r.Post("/columns/boards/{id}", s.apiCreateColumn)
		r.Get("/columns/{id}/integrity", s.apiCheckColumn)
		r.Post("/columns/{id}/repair", s.apiRepairColumn)

		// Labels
		r.Get("/labels", s.apiListLabels)
		r.Get("/labels/board/{id}", s.apiListBoardLabels)
		r.Post("/labels", s.apiCreateLabel)

		// SSE for real-time updates
		r.Get("/events", s.handleSSE)
	})

	return r
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting taskboard server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Streams never finish on their own, so end them before draining.
	s.events.close()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Broadcast sends an SSE event about a board to the clients watching it.
func (s *Server) Broadcast(name, boardID string) {
	n := s.events.publish(name, boardID)
	s.logger.Debug("Event broadcast", "type", name, "board", boardID, "clients", n)
}

// withLogging wraps a handler with request logging and metrics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Unmatched paths share one label so scans cannot grow the series set.
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.observe(r.Method, route, ww.Status(), time.Since(start))

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

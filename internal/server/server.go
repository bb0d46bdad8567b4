// Package server exposes the connection operations over HTTP. It is the
// surrounding application surface: JSON in, JSON out, no backend-specific
// knowledge anywhere in its handlers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/bench"
	"github.com/prateeksaini/dbridge/internal/logger"
	"github.com/prateeksaini/dbridge/internal/query"
	"github.com/prateeksaini/dbridge/internal/registry"
	"github.com/prateeksaini/dbridge/internal/schema"
)

// Service is everything the HTTP layer needs from the registry.
// *registry.Manager satisfies it.
type Service interface {
	Open(ctx context.Context, kind backend.Kind, cfg backend.Config) (string, error)
	Get(id string) (registry.Info, error)
	List() []registry.Info
	ListDatabases(ctx context.Context, id string) ([]string, error)
	UseDatabase(ctx context.Context, id, name string) error
	ListTables(ctx context.Context, id string) ([]string, error)
	DescribeTable(ctx context.Context, id, table string) ([]backend.Column, error)
	Execute(ctx context.Context, id, sql string) (*backend.Result, error)
	Close(id string) error
}

// Server wires the registry, introspector, executor, and benchmark runner
// behind a chi router.
type Server struct {
	svc   Service
	intro *schema.Introspector
	exec  *query.Executor
	bench *bench.Bench
	pool  backend.Config
	log   *logger.Logger
}

// New creates a Server. pool carries the connection defaults applied to
// every open request; a nil log falls back to the default logger.
func New(svc Service, pool backend.Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New(nil)
	}
	return &Server{
		svc:   svc,
		intro: schema.New(svc),
		exec:  query.New(svc),
		bench: bench.New(svc, log),
		pool:  pool,
		log:   log,
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/connections", func(r chi.Router) {
		r.Post("/", s.handleOpen)
		r.Get("/", s.handleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleInfo)
			r.Delete("/", s.handleClose)
			r.Get("/databases", s.handleListDatabases)
			r.Put("/database", s.handleUseDatabase)
			r.Get("/tables", s.handleListTables)
			r.Get("/tables/{table}", s.handleDescribeTable)
			r.Post("/query", s.handleQuery)
			r.Get("/schema", s.handleSchema)
			r.Post("/benchmark", s.handleBenchmark)
		})
	})

	return r
}

// requestLogger logs one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Logger().
			Info("request")
	})
}

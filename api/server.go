// Package api serves the question-answering HTTP surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/malbeclabs/sportsql/agent/pkg/pipeline"
	"github.com/malbeclabs/sportsql/api/metrics"
	"github.com/malbeclabs/sportsql/pkg/refresh"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const (
	defaultListenAddr  = ":8080"
	maxRequestBodySize = 1 << 20
	healthTimeout      = 2 * time.Second
)

// Answerer runs questions through the pipeline.
type Answerer interface {
	Direct(ctx context.Context, req pipeline.Request) (*pipeline.DirectResponse, error)
	Deep(ctx context.Context, req pipeline.Request) (*pipeline.DeepResponse, error)
	Visualize(ctx context.Context, question string, rs store.ResultSet) (string, error)
}

// Refresher starts and reports data refreshes.
type Refresher interface {
	Start(ctx context.Context) error
	Status() refresh.Status
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	log            *slog.Logger
	answerer       Answerer
	refresher      Refresher
	store          Pinger
	adminToken     string
	plotsDir       string
	allowedOrigins []string
	listenAddr     string

	httpServer *http.Server

	// ctx outlives requests and bounds background refreshes.
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

func WithAnswerer(a Answerer) Option {
	return func(s *Server) {
		s.answerer = a
	}
}

// WithRefresher enables the admin refresh endpoints. They also need an admin
// token.
func WithRefresher(r Refresher, adminToken string) Option {
	return func(s *Server) {
		s.refresher = r
		s.adminToken = adminToken
	}
}

func WithStore(p Pinger) Option {
	return func(s *Server) {
		s.store = p
	}
}

// WithPlotsDir serves rendered chart specs from dir under /plots/.
func WithPlotsDir(dir string) Option {
	return func(s *Server) {
		s.plotsDir = dir
	}
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		log:            slog.Default(),
		listenAddr:     defaultListenAddr,
		allowedOrigins: []string{"http://localhost:5173"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if s.store == nil {
		return nil, errors.New("store is required")
	}
	if s.refresher != nil && s.adminToken == "" {
		return nil, errors.New("admin token is required to enable refresh")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/query", s.handleQuery)
	r.Post("/api/visualize", s.handleVisualize)

	if s.refresher != nil {
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/refresh", s.handleRefreshStart)
			r.Get("/refresh", s.handleRefreshStatus)
		})
	}

	if s.plotsDir != "" {
		r.Get("/plots/*", s.handlePlots)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("api: server starting", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not listen on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and cancels background refreshes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("api: shutting down server")
	defer s.cancel()
	return s.httpServer.Shutdown(ctx)
}

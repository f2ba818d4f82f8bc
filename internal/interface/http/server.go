// Package http exposes the study session and progression operations over a
// JSON REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sio4242/Godsaeng-project/internal/application/command"
	"github.com/sio4242/Godsaeng-project/internal/application/query"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	EnableCORS     bool
	AllowedOrigins []string

	// UserIDHeader carries the identity set by the trusted upstream.
	UserIDHeader string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		UserIDHeader:   DefaultUserIDHeader,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	OpenSession    *command.OpenSessionHandler
	CloseSession   *command.CloseSessionHandler
	ListSessions   *query.ListSessionsHandler
	GetProgression *query.GetProgressionHandler

	Health *HealthChecker
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker("")
	}
	if config.UserIDHeader == "" {
		config.UserIDHeader = DefaultUserIDHeader
	}

	s := &Server{
		config: config,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.router = NewRouter(config, deps, s.logger)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// NewRouter builds the chi router with middleware and routes.
func NewRouter(config Config, deps Dependencies, log *logger.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(log))
	r.Use(Recovery(log))
	if config.EnableCORS {
		r.Use(CORS(config.AllowedOrigins))
	}

	study := &studyHandler{
		open:        deps.OpenSession,
		close:       deps.CloseSession,
		list:        deps.ListSessions,
		progression: deps.GetProgression,
	}

	r.Get("/health", healthHandler(deps.Health))

	r.Group(func(r chi.Router) {
		r.Use(Identity(config.UserIDHeader))

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/study/sessions", func(r chi.Router) {
				r.Post("/", study.Open)
				r.Get("/", study.List)
				r.Post("/{id}/close", study.Close)
			})
			r.Get("/progression", study.Progression)
		})

		// Legacy client paths.
		r.Post("/api/study/start", study.Open)
		r.Put("/api/study/stop/{logId}", study.Close)
	})

	return r
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. Blocks until shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
// Returns a channel that receives an error if the server fails to start.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openpricing/kestrel/internal/domain"
	"github.com/openpricing/kestrel/internal/pricing"
	"github.com/openpricing/kestrel/internal/quote"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *pricing.Engine, composer *quote.Composer, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, composer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORS)                   // CORS for browser clients
	router.Use(Recoverer)              // Recover from panics
	router.Use(Trace)                  // OpenTelemetry tracing
	router.Use(RequestLogger)          // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(RequireTenant)

		// Quote computation
		r.Post("/quote", handler.Quote)

		// Quote retrieval
		r.Get("/quotes/{id}", handler.GetQuote)

		// Pricing rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Service endpoint management
		r.Get("/services", handler.ListServices)
		r.Get("/services/{id}", handler.GetService)
		r.Post("/services", handler.CreateService)
		r.Put("/services/{id}", handler.UpdateService)
		r.Delete("/services/{id}", handler.DeleteService)
		r.Post("/services/reload", handler.ReloadServices)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

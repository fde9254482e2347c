// Package core provides the HTTP chassis of the graphbuilder API gateway.
// It owns the chi router and the cross-cutting concerns (panic recovery,
// request correlation, logging, CORS, compression, security headers, metrics
// and error formatting) that wrap every route, whether served locally or
// delegated to the graph-builder backend.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"graphbuilder/internal/config"
)

// Server encapsulates the router and its dependencies. It is created once
// per process.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// Optional dependencies, injected by the entry point before MountRoutes.
	Metrics         MetricsCollector
	MetricsHandler  http.Handler
	HealthProbes    []HealthProbe
	RouteRegistrars []RouteRegistrar

	// ShutdownHooks run in order during Shutdown.
	ShutdownHooks []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer validates its inputs and prepares an empty router. Routes are
// attached by MountRoutes after optional dependencies are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux. Used by MountRoutes and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the registered hooks, continuing past failures, and returns
// their joined errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.ShutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutting down server resources: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}

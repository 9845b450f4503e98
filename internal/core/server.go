// Package core provides the API chassis for the Voyage service. It creates a
// chi router compatible with both standard HTTP (for local dev) and AWS
// Lambda Proxy Integration, and enforces cross-cutting concerns -- security
// headers, logging, compression, metrics, and error handling -- before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voyage/internal/config"
	"voyage/internal/types"
)

// Authenticator resolves a raw bearer token to the acting account.
// Implemented by the auth service; injected for testability.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (types.Actor, error)
}

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of domain handler routes onto a router.
// Registrars are populated by the application entry point, which avoids
// import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the Voyage API, allowing for easy
// injection during testing and distinct configuration per environment.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// V1RouteRegistrars holds the domain route groups mounted under /v1.
	V1RouteRegistrars []RouteRegistrar

	// closers run during Shutdown, in registration order.
	closers []func() error

	router *chi.Mux
}

// NewServer initializes the router and prepares the server for route
// mounting. It fails fast on missing critical dependencies. The caller
// mounts routes via MountRoutes after registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router. Used by
// http.ListenAndServe locally and the Lambda adapter in production.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup function to run during Shutdown, such as
// closing the database pool.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			s.Logger.Error("error during shutdown", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}

package core

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	// RecordRequest records one completed request. endpoint is the matched
	// route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// HealthProbe is one dependency checked by GET /health.
type HealthProbe interface {
	// Name identifies the probe in the health response (e.g. "graph_builder").
	Name() string

	// Check returns an error when the dependency is unhealthy. It must honour
	// the context deadline.
	Check(ctx context.Context) error
}

// RouteRegistrar mounts a group of routes on the root router. Subsystems
// expose one so the entry point can list the full route set explicitly.
type RouteRegistrar func(r chi.Router)

package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole probe fan-out. Probes still running at
// the deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently and reports 200 when
// all pass, 503 otherwise. With no probes the gateway reports itself healthy.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: statusHealthy, Version: s.Config.Build.Version}

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	// Each probe owns one buffered slot so a late probe never blocks.
	results := make([]chan error, len(probes))
	for i, probe := range probes {
		results[i] = make(chan error, 1)
		go func(p HealthProbe, out chan<- error) {
			defer func() {
				if rvr := recover(); rvr != nil {
					out <- fmt.Errorf("probe panicked: %v", rvr)
				}
			}()
			out <- p.Check(ctx)
		}(probe, results[i])
	}

	resp.Components = make(map[string]componentStatus, len(probes))
	for i, probe := range probes {
		var status componentStatus
		select {
		case err := <-results[i]:
			if err != nil {
				status = componentStatus{Status: statusUnhealthy, Message: err.Error()}
			} else {
				status = componentStatus{Status: statusHealthy}
			}
		case <-ctx.Done():
			status = componentStatus{Status: statusUnhealthy, Message: "health check timed out"}
		}
		if status.Status != statusHealthy {
			resp.Status = statusUnhealthy
		}
		resp.Components[probe.Name()] = status
	}

	if resp.Status != statusHealthy {
		JSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	JSON(w, r, http.StatusOK, resp)
}

package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveHealth(t *testing.T, probes ...HealthProbe) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()

	srv := newTestServer(t)
	srv.HealthProbes = probes

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return rec, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	rec, resp := serveHealth(t)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	if len(resp.Components) != 0 {
		t.Errorf("expected no components, got %v", resp.Components)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	rec, resp := serveHealth(t, &mockHealthProbe{name: "graph_builder"}, &mockHealthProbe{name: "ssm"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	for _, name := range []string{"graph_builder", "ssm"} {
		if resp.Components[name].Status != "healthy" {
			t.Errorf("component %s: expected healthy, got %+v", name, resp.Components[name])
		}
	}
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	rec, resp := serveHealth(t,
		&mockHealthProbe{name: "graph_builder", checkErr: errors.New("connection refused")},
		&mockHealthProbe{name: "ssm"},
	)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %q", resp.Status)
	}
	gb := resp.Components["graph_builder"]
	if gb.Status != "unhealthy" || gb.Message != "connection refused" {
		t.Errorf("unexpected graph_builder component: %+v", gb)
	}
	if resp.Components["ssm"].Status != "healthy" {
		t.Errorf("ssm should stay healthy, got %+v", resp.Components["ssm"])
	}
}

func TestHandleHealth_Timeout(t *testing.T) {
	start := time.Now()
	rec, resp := serveHealth(t, &mockHealthProbe{name: "graph_builder", delay: 10 * time.Second})
	elapsed := time.Since(start)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if resp.Components["graph_builder"].Status != "unhealthy" {
		t.Errorf("slow probe should be unhealthy, got %+v", resp.Components["graph_builder"])
	}
	if elapsed > healthCheckTimeout+time.Second {
		t.Errorf("health check should finish near the timeout, took %v", elapsed)
	}
}

func TestHandleHealth_ProbePanic(t *testing.T) {
	rec, resp := serveHealth(t, &mockHealthProbe{name: "graph_builder", panicMsg: "boom"})

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if got := resp.Components["graph_builder"].Message; got != "probe panicked: boom" {
		t.Errorf("expected panic message, got %q", got)
	}
}

func TestHandleHealth_ConcurrentExecution(t *testing.T) {
	probes := []HealthProbe{
		&mockHealthProbe{name: "a", delay: 300 * time.Millisecond},
		&mockHealthProbe{name: "b", delay: 300 * time.Millisecond},
		&mockHealthProbe{name: "c", delay: 300 * time.Millisecond},
	}

	start := time.Now()
	rec, _ := serveHealth(t, probes...)
	elapsed := time.Since(start)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if elapsed > 800*time.Millisecond {
		t.Errorf("probes should run concurrently, took %v", elapsed)
	}
	for _, p := range probes {
		if !p.(*mockHealthProbe).called.Load() {
			t.Errorf("probe %s was not called", p.Name())
		}
	}
}

func TestHandleHealth_ReportsBuildVersion(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.4.2"

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != "1.4.2" {
		t.Errorf("expected version 1.4.2, got %q", resp.Version)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

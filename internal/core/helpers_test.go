package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"graphbuilder/internal/config"
)

type metricsCall struct {
	method   string
	endpoint string
	status   string
	duration time.Duration
}

// mockMetricsCollector records every RecordRequest call.
type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (m *mockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{method: method, endpoint: endpoint, status: status, duration: duration})
}

// mockHealthProbe implements HealthProbe. Check blocks for delay, honouring
// the context, then returns checkErr.
type mockHealthProbe struct {
	name     string
	checkErr error
	delay    time.Duration
	panicMsg string
	called   atomic.Bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"*"},
			CorsAllowedHeaders: []string{"Content-Type", "Authorization"},
			FrameOptions:       "DENY",
		},
		Compression: config.CompressionConfig{
			MinSize: 1000,
			Level:   -1,
		},
		Observability: config.ObservabilityConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(testConfig(), logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

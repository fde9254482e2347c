// Package metrics exports gateway telemetry in the Prometheus format.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

const namespace = "graphbuilder"

// Collector implements core.MetricsCollector and records upstream breaker
// state.
type Collector struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

// NewCollector creates the collectors and registers them with reg. Each
// registry accepts one Collector; tests pass a fresh prometheus.NewRegistry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		return nil, errors.New("metrics registerer must not be nil")
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Completed HTTP requests by method, route pattern and status.",
			},
			[]string{"method", "route", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and route pattern.",
				// Extraction and chat calls routinely take tens of seconds.
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"method", "route"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"breaker"},
		),
	}

	for _, collector := range []prometheus.Collector{c.requests, c.latency, c.breakerState} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("registering metrics collector: %w", err)
		}
	}
	return c, nil
}

// RecordRequest implements core.MetricsCollector.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.requests.WithLabelValues(method, endpoint, status).Inc()
	c.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// BreakerStateChanged records a breaker transition. Its signature matches
// external.StateListener.
func (c *Collector) BreakerStateChanged(name string, _, to gobreaker.State) {
	c.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

// InitBreaker exports name as closed before its first transition.
func (c *Collector) InitBreaker(name string) {
	c.breakerState.WithLabelValues(name).Set(breakerStateValue(gobreaker.StateClosed))
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Handler serves the metrics in g, negotiating OpenMetrics when the scraper
// asks for it.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

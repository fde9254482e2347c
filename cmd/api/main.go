// Package main is the entry point for the graphbuilder API gateway.
//
// It loads the layered configuration, builds the HTTP chassis, mounts the
// delegated module routes in front of the graph-builder backend and serves
// until SIGINT or SIGTERM, then drains in-flight requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"graphbuilder/internal/api/handlers"
	"graphbuilder/internal/config"
	"graphbuilder/internal/core"
	"graphbuilder/internal/external"
	"graphbuilder/internal/metrics"
	"graphbuilder/internal/modules"
)

// upstreamName labels the graph-builder backend in breaker metrics and
// health output.
const upstreamName = "graph_builder"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfigSelecting(secretProvider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("graphbuilder API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"backend", cfg.Backend.URL,
	)
	logger.Info("llm configuration loaded",
		"model_configs", len(cfg.LLM.Models),
		"default_chat_model", cfg.LLM.DefaultChatModel,
		"graph_cleanup_model", cfg.LLM.GraphCleanupModel,
		"openai_key_set", cfg.LLM.OpenAIAPIKey.IsSet(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := buildServer(cfg, logger, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, srv, cfg, logger)
}

// buildServer wires every component onto a mounted core.Server.
func buildServer(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	var transportOpts []external.TransportOption
	if cfg.Observability.MetricsEnabled {
		collector, err := metrics.NewCollector(reg)
		if err != nil {
			return nil, err
		}
		collector.InitBreaker(upstreamName)
		srv.Metrics = collector
		srv.MetricsHandler = metrics.Handler(reg)
		transportOpts = append(transportOpts, external.WithStateListener(collector.BreakerStateChanged))
	}

	target, err := url.Parse(cfg.Backend.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing GRAPH_BUILDER_URL: %w", err)
	}

	upstream := external.NewUpstreamTransport(cfg.Backend.ResponseHeaderTimeout)
	policy := external.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Backend.MaxRetries
	transport := external.NewBreakerTransport(upstream, upstreamName, policy, userAgent(cfg), transportOpts...)

	forwarder, err := modules.NewForwarder(target, transport, logger)
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	mods := modules.Catalog(forwarder)
	if err := modules.Validate(mods); err != nil {
		return nil, fmt.Errorf("validating module routes: %w", err)
	}
	for _, m := range mods {
		logger.Debug("module registered", "module", m.Name(), "routes", len(m.Routes()))
		srv.RouteRegistrars = append(srv.RouteRegistrars, m.RegisterRoutes)
	}

	if cfg.Debug.EnvDebugEnabled {
		logger.Warn("environment debug endpoint enabled; it returns credential values verbatim",
			"path", handlers.EnvDebugPath,
			"token_guard", cfg.Debug.TokenHash.IsSet(),
		)
		envDebug := handlers.NewEnvDebugHandler(cfg.Env, cfg.Debug.TokenHash, logger)
		srv.RouteRegistrars = append(srv.RouteRegistrars, envDebug.RegisterRoutes)
	}

	srv.HealthProbes = append(srv.HealthProbes,
		external.NewUpstreamProbe(upstreamName, cfg.Backend.URL, cfg.Backend.HealthPath, &http.Client{}),
	)

	srv.ShutdownHooks = append(srv.ShutdownHooks, func(context.Context) error {
		upstream.CloseIdleConnections()
		return nil
	})

	if err := srv.MountRoutes(); err != nil {
		return nil, fmt.Errorf("mounting routes: %w", err)
	}
	return srv, nil
}

// serve runs the HTTP listener until ctx is cancelled or the listener fails,
// then shuts down within SHUTDOWN_TIMEOUT.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// secretProvider selects how _SSM_PARAM pointers are resolved.
// SECRET_PROVIDER=env reads the referenced names from the process
// environment, for local stacks without AWS access. Otherwise the SSM client
// is created lazily, only when pointers need resolving.
func secretProvider(getenv func(string) string) config.SecretProvider {
	if getenv("SECRET_PROVIDER") == "env" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(getenv("AWS_REGION"))
}

func userAgent(cfg *config.Config) string {
	version := cfg.Build.Version
	if version == "" {
		version = "dev"
	}
	return cfg.Service + "/" + version
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

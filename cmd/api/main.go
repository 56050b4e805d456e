package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/chat-widget-relay/internal/api/router"
	"github.com/wolfman30/chat-widget-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/chat-widget-relay/internal/config"
	"github.com/wolfman30/chat-widget-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting chat widget relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"upstream", cfg.UpstreamURL(),
		"relay_path", cfg.RelayPath,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, cleanup := buildServer(ctx, cfg, logger)
	defer cleanup()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Error("failed to listen", "addr", srv.Addr, "error", err)
		os.Exit(1)
	}

	if err := serve(ctx, srv, ln, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildServer wires metrics, the optional Redis client, the rate limiter and
// the relay behind the router. cleanup releases the Redis client.
func buildServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*http.Server, func()) {
	var (
		relayMetrics   *metrics.RelayMetrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		relayMetrics = metrics.NewRelayMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	cleanup := func() {}
	if redisClient != nil {
		cleanup = func() { _ = redisClient.Close() }
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Relay:              bootstrap.BuildRelay(cfg, relayMetrics, logger),
		RelayPath:          cfg.RelayPath,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        bootstrap.BuildRateLimiter(ctx, cfg, redisClient, logger),
		Metrics:            relayMetrics,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout(cfg.UpstreamTimeout),
		IdleTimeout:       60 * time.Second,
	}
	return srv, cleanup
}

// writeTimeout leaves room for the relay to answer after the upstream
// deadline fires.
func writeTimeout(upstream time.Duration) time.Duration {
	return upstream + 15*time.Second
}

// serve runs srv on ln until ctx is cancelled, then shuts it down within
// shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

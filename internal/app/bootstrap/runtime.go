package bootstrap

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/chat-widget-relay/internal/config"
	httpmiddleware "github.com/wolfman30/chat-widget-relay/internal/http/middleware"
	"github.com/wolfman30/chat-widget-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-widget-relay/internal/relay"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

// redisWindow is the fixed window used by the shared rate limiter.
const redisWindow = time.Second

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildRateLimiter picks the Redis limiter when a client is available and
// falls back to the per-process token bucket. A zero rate disables limiting.
func BuildRateLimiter(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) httpmiddleware.Limiter {
	if cfg == nil || cfg.RateLimitRPS <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient != nil {
		limit := httpmiddleware.LimitForRate(cfg.RateLimitRPS, cfg.RateLimitBurst, redisWindow)
		logger.Info("rate limiter: redis", "limit", limit, "window", redisWindow.String())
		return httpmiddleware.NewRedisLimiter(redisClient, limit, redisWindow)
	}
	logger.Info("rate limiter: in-memory", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return httpmiddleware.NewMemoryLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
}

// BuildRelay wires the relay endpoint from configuration.
func BuildRelay(cfg *appconfig.Config, m *metrics.RelayMetrics, logger *logging.Logger) *relay.Relay {
	return relay.New(relay.Options{
		UpstreamURL:      cfg.UpstreamURL(),
		Timeout:          cfg.UpstreamTimeout,
		MaxRequestBytes:  cfg.MaxRequestBytes,
		MaxResponseBytes: cfg.MaxResponseBytes,
		HTTPClient: &http.Client{
			Transport: http.DefaultTransport,
		},
		Metrics: m,
		Logger:  logger,
	})
}

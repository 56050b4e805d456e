package config

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "UPSTREAM_BASE_URL", "UPSTREAM_CHAT_PATH",
		"UPSTREAM_TIMEOUT", "RELAY_PATH", "CORS_ALLOWED_ORIGINS", "REDIS_ADDR",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "METRICS_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	assert.Equal(t, "https://server-deploy-on-render.vercel.app/v1/chat", cfg.UpstreamURL())
	assert.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "/api/chat", cfg.RelayPath)
	assert.Empty(t, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 2.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.True(t, cfg.MetricsEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UPSTREAM_BASE_URL", "http://chat.internal:8000/")
	t.Setenv("UPSTREAM_CHAT_PATH", "v2/complete")
	t.Setenv("UPSTREAM_TIMEOUT", "15s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("METRICS_ENABLED", "false")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://chat.internal:8000/v2/complete", cfg.UpstreamURL())
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 0.5, cfg.RateLimitRPS)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.RedisTLS)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_BURST", "many")
	t.Setenv("METRICS_ENABLED", "perhaps")

	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.True(t, cfg.MetricsEnabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		UpstreamBaseURL:  "ftp://files.example",
		UpstreamChatPath: "/v1/chat",
		UpstreamTimeout:  0,
		RelayPath:        "api/chat",
		MaxRequestBytes:  0,
		MaxResponseBytes: 1,
		RateLimitRPS:     -1,
	}

	err := cfg.Validate()
	require.Error(t, err)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "expected *multierror.Error, got %T", err)
	assert.Len(t, merr.Errors, 5)
	assert.True(t, strings.Contains(err.Error(), "UPSTREAM_TIMEOUT"))
	assert.True(t, strings.Contains(err.Error(), "RELAY_PATH"))
}

func TestValidateRejectsMissingHost(t *testing.T) {
	cfg := &Config{
		UpstreamBaseURL:  "http://",
		UpstreamChatPath: "/v1/chat",
		UpstreamTimeout:  time.Second,
		RelayPath:        "/api/chat",
		MaxRequestBytes:  1,
		MaxResponseBytes: 1,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host")
}

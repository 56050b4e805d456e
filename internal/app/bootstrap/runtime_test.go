package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/chat-widget-relay/internal/config"
	httpmiddleware "github.com/wolfman30/chat-widget-relay/internal/http/middleware"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: "  "}, nil, true))
}

func TestBuildRedisClientVerifiesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.Discard(), true))
}

func TestBuildRateLimiter(t *testing.T) {
	logger := logging.Discard()

	assert.Nil(t, BuildRateLimiter(testContext(t), &appconfig.Config{RateLimitRPS: 0}, nil, logger))

	mem := BuildRateLimiter(testContext(t), &appconfig.Config{RateLimitRPS: 2, RateLimitBurst: 10}, nil, logger)
	assert.IsType(t, &httpmiddleware.MemoryLimiter{}, mem)

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	shared := BuildRateLimiter(testContext(t), &appconfig.Config{RateLimitRPS: 2, RateLimitBurst: 10}, client, logger)
	require.IsType(t, &httpmiddleware.RedisLimiter{}, shared)
	ok, err := shared.Allow(context.Background(), "203.0.113.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildRelayUsesConfiguredUpstream(t *testing.T) {
	var gotPath string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	t.Cleanup(up.Close)

	cfg := &appconfig.Config{
		UpstreamBaseURL:  up.URL + "/",
		UpstreamChatPath: "v1/chat",
		UpstreamTimeout:  time.Second,
		MaxRequestBytes:  1 << 10,
		MaxResponseBytes: 1 << 10,
	}
	rl := BuildRelay(cfg, nil, logging.Discard())

	res := rl.Forward(context.Background(), []byte(`{"messages":[]}`))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "/v1/chat", gotPath)

	res = rl.Forward(context.Background(), []byte(`{"pad":"`+strings.Repeat("x", 2048)+`"}`))
	assert.Equal(t, http.StatusInternalServerError, res.Status)
}

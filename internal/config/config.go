package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

const (
	DefaultUpstreamBaseURL  = "https://server-deploy-on-render.vercel.app"
	DefaultUpstreamChatPath = "/v1/chat"
	DefaultRelayPath        = "/api/chat"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Upstream chat backend
	UpstreamBaseURL  string
	UpstreamChatPath string
	UpstreamTimeout  time.Duration

	// Relay endpoint
	RelayPath        string
	MaxRequestBytes  int64
	MaxResponseBytes int64

	CORSAllowedOrigins []string

	// Rate limiting (Redis-backed when RedisAddr is set)
	RateLimitRPS   float64
	RateLimitBurst int
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool

	MetricsEnabled  bool
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, after loading a
// .env file when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		UpstreamBaseURL:  strings.TrimRight(strings.TrimSpace(getEnv("UPSTREAM_BASE_URL", DefaultUpstreamBaseURL)), "/"),
		UpstreamChatPath: getEnv("UPSTREAM_CHAT_PATH", DefaultUpstreamChatPath),
		UpstreamTimeout:  getEnvAsDuration("UPSTREAM_TIMEOUT", 60*time.Second),

		RelayPath:        getEnv("RELAY_PATH", DefaultRelayPath),
		MaxRequestBytes:  int64(getEnvAsInt("RELAY_MAX_REQUEST_BYTES", 1<<20)),
		MaxResponseBytes: int64(getEnvAsInt("RELAY_MAX_RESPONSE_BYTES", 4<<20)),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),

		MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// UpstreamURL is the single upstream endpoint the relay forwards to.
func (c *Config) UpstreamURL() string {
	path := c.UpstreamChatPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(c.UpstreamBaseURL, "/") + path
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	u, err := url.Parse(c.UpstreamURL())
	switch {
	case err != nil:
		result = multierror.Append(result, fmt.Errorf("config: invalid UPSTREAM_BASE_URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		result = multierror.Append(result, fmt.Errorf("config: UPSTREAM_BASE_URL must be http(s), got %q", c.UpstreamBaseURL))
	case u.Host == "":
		result = multierror.Append(result, errors.New("config: UPSTREAM_BASE_URL has no host"))
	}
	if c.UpstreamTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("config: UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout))
	}
	if !strings.HasPrefix(c.RelayPath, "/") {
		result = multierror.Append(result, fmt.Errorf("config: RELAY_PATH must start with '/', got %q", c.RelayPath))
	}
	if c.MaxRequestBytes <= 0 {
		result = multierror.Append(result, errors.New("config: RELAY_MAX_REQUEST_BYTES must be positive"))
	}
	if c.MaxResponseBytes <= 0 {
		result = multierror.Append(result, errors.New("config: RELAY_MAX_RESPONSE_BYTES must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		result = multierror.Append(result, errors.New("config: rate limit settings must not be negative"))
	}

	return result.ErrorOrNil()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

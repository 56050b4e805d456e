package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/chat-widget-relay/internal/http/middleware"
	"github.com/wolfman30/chat-widget-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

// DefaultRelayPath is where the relay is mounted when Config.RelayPath is empty.
const DefaultRelayPath = "/api/chat"

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Relay              http.Handler
	RelayPath          string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Rate limiting for the relay route (optional)
	RateLimiter httpmiddleware.Limiter
	RetryAfter  time.Duration
	Metrics     *metrics.RelayMetrics
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	relayPath := cfg.RelayPath
	if relayPath == "" {
		relayPath = DefaultRelayPath
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Routes: map[string][]string{
				relayPath: {http.MethodPost},
				"/health": {http.MethodGet},
			},
		}))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Relay != nil {
		retryAfter := cfg.RetryAfter
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		r.With(httpmiddleware.RateLimit(cfg.RateLimiter, retryAfter, cfg.Metrics, cfg.Logger)).
			Post(relayPath, cfg.Relay.ServeHTTP)
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

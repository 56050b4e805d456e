package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/chat-widget-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

// ErrUpstreamTimeout is returned when the upstream call outlives the
// configured timeout.
var ErrUpstreamTimeout = errors.New("relay: upstream timeout")

const (
	defaultTimeout          = 60 * time.Second
	defaultMaxRequestBytes  = 1 << 20
	defaultMaxResponseBytes = 4 << 20
)

// Options configures a Relay.
type Options struct {
	UpstreamURL      string
	Timeout          time.Duration
	MaxRequestBytes  int64
	MaxResponseBytes int64
	HTTPClient       *http.Client
	Metrics          *metrics.RelayMetrics
	Logger           *logging.Logger
}

// Relay forwards chat payloads to a single upstream endpoint and normalizes
// whatever comes back into a JSON envelope.
type Relay struct {
	upstreamURL      string
	timeout          time.Duration
	maxRequestBytes  int64
	maxResponseBytes int64
	client           *http.Client
	metrics          *metrics.RelayMetrics
	logger           *logging.Logger
	tracer           trace.Tracer
}

// Result is a normalized relay response. Body is always valid JSON.
type Result struct {
	Status  int
	Body    []byte
	Outcome string
}

// New creates a relay. Zero values in opts fall back to defaults.
func New(opts Options) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = defaultMaxRequestBytes
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = defaultMaxResponseBytes
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Relay{
		upstreamURL:      opts.UpstreamURL,
		timeout:          opts.Timeout,
		maxRequestBytes:  opts.MaxRequestBytes,
		maxResponseBytes: opts.MaxResponseBytes,
		client:           opts.HTTPClient,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		tracer:           otel.Tracer("chatwidget.internal.relay"),
	}
}

// ServeHTTP relays the request body and writes the envelope.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := rl.guard(r.Context(), func(ctx context.Context) (Result, error) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rl.maxRequestBytes))
		if err != nil {
			return Result{}, fmt.Errorf("read request body: %w", err)
		}
		return rl.forward(ctx, body)
	})
	WriteResult(w, res)
}

// Forward relays an already-read request body. It never returns a non-JSON
// body.
func (rl *Relay) Forward(ctx context.Context, body []byte) Result {
	return rl.guard(ctx, func(ctx context.Context) (Result, error) {
		if int64(len(body)) > rl.maxRequestBytes {
			return Result{}, fmt.Errorf("request body exceeds %d bytes", rl.maxRequestBytes)
		}
		return rl.forward(ctx, body)
	})
}

// WriteResult writes res as an application/json response.
func WriteResult(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

// guard is the single boundary that turns every exit of fn, including
// panics, into a JSON result.
func (rl *Relay) guard(ctx context.Context, fn func(context.Context) (Result, error)) (res Result) {
	start := time.Now()
	reqID := middleware.GetReqID(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			var err error
			if e, ok := rec.(error); ok {
				err = e
			}
			rl.logger.Error("relay: recovered from panic", "panic", fmt.Sprint(rec), "request_id", reqID)
			res = Result{Status: http.StatusInternalServerError, Body: localFailure(err, rl.timeout), Outcome: metrics.OutcomeLocalError}
		}
		rl.metrics.ObserveRequest(res.Outcome)
		rl.logger.Info("relay: completed",
			"request_id", reqID,
			"status", res.Status,
			"outcome", res.Outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	var err error
	res, err = fn(ctx)
	if err != nil {
		outcome := metrics.OutcomeLocalError
		if errors.Is(err, ErrUpstreamTimeout) {
			outcome = metrics.OutcomeTimeout
		}
		rl.logger.Warn("relay: local failure", "error", err, "request_id", reqID, "outcome", outcome)
		return Result{Status: http.StatusInternalServerError, Body: localFailure(err, rl.timeout), Outcome: outcome}
	}
	return res
}

func (rl *Relay) forward(ctx context.Context, body []byte) (Result, error) {
	var payload json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return Result{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	ctx, span := rl.tracer.Start(ctx, "relay.forward")
	defer span.End()
	span.SetAttributes(attribute.String("relay.upstream_url", rl.upstreamURL))

	// Only the relay's own deadline carries ErrUpstreamTimeout as its cause.
	// A caller deadline or cancellation is reported as a local failure.
	callCtx, cancel := context.WithTimeoutCause(ctx, rl.timeout, ErrUpstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, rl.upstreamURL, &compact)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}

	start := time.Now()
	raw, status, err := rl.call(req)
	if err != nil {
		if errors.Is(context.Cause(callCtx), ErrUpstreamTimeout) {
			err = fmt.Errorf("%w after %s: %v", ErrUpstreamTimeout, rl.timeout, err)
			rl.metrics.ObserveUpstreamLatency(metrics.OutcomeTimeout, time.Since(start).Seconds())
		} else {
			rl.metrics.ObserveUpstreamLatency(metrics.OutcomeLocalError, time.Since(start).Seconds())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	rl.metrics.ObserveUpstreamStatus(status)
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	upstream, err := parseUpstreamBody(raw)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		rl.metrics.ObserveUpstreamLatency(metrics.OutcomeSuccess, time.Since(start).Seconds())
		return Result{Status: successStatus(status), Body: upstream.json, Outcome: metrics.OutcomeSuccess}, nil
	}

	rl.metrics.ObserveUpstreamLatency(metrics.OutcomeUpstreamError, time.Since(start).Seconds())
	span.SetStatus(codes.Error, fmt.Sprintf("upstream status %d", status))
	envelope, err := upstreamFailure(status, upstream)
	if err != nil {
		return Result{}, fmt.Errorf("encode upstream failure: %w", err)
	}
	rl.logger.Warn("relay: upstream failure", "upstream_status", status, "request_id", middleware.GetReqID(ctx))
	return Result{Status: failureStatus(status), Body: envelope, Outcome: metrics.OutcomeUpstreamError}, nil
}

// call performs the single upstream exchange and reads the whole body under
// the same deadline.
func (rl *Relay) call(req *http.Request) ([]byte, int, error) {
	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, rl.maxResponseBytes+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read upstream response: %w", err)
	}
	if int64(len(raw)) > rl.maxResponseBytes {
		return nil, 0, fmt.Errorf("upstream response exceeds %d bytes", rl.maxResponseBytes)
	}
	return raw, resp.StatusCode, nil
}

// successStatus mirrors the upstream status unless it cannot carry a body.
func successStatus(status int) int {
	if status == http.StatusNoContent {
		return http.StatusOK
	}
	return status
}

// failureStatus mirrors the upstream status unless it cannot carry a body.
func failureStatus(status int) int {
	if status < http.StatusOK || status == http.StatusNotModified {
		return http.StatusBadGateway
	}
	return status
}

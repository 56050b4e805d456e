package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/chat-widget-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/chat-widget-relay/internal/config"
	"github.com/wolfman30/chat-widget-relay/internal/relay"
	"github.com/wolfman30/chat-widget-relay/pkg/logging"
)

type handler struct {
	relay     *relay.Relay
	relayPath string
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	h := &handler{
		relay:     bootstrap.BuildRelay(cfg, nil, logger),
		relayPath: cfg.RelayPath,
	}
	lambda.Start(h.handle)
}

func (h *handler) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
	}
	if path != h.relayPath {
		return jsonResponse(http.StatusNotFound, `{"error":"not found"}`), nil
	}
	if method != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, `{"error":"method not allowed"}`), nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, `{"error":"invalid body"}`), nil
	}

	reqID := strings.TrimSpace(headerValue(evt.Headers, middleware.RequestIDHeader))
	if reqID == "" {
		reqID = evt.RequestContext.RequestID
	}
	if reqID != "" {
		ctx = context.WithValue(ctx, middleware.RequestIDKey, reqID)
	}

	res := h.relay.Forward(ctx, body)
	out := jsonResponse(res.Status, string(res.Body))
	if reqID != "" {
		out.Headers[strings.ToLower(middleware.RequestIDHeader)] = reqID
	}
	return out, nil
}

func jsonResponse(status int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       body,
		Headers: map[string]string{
			"content-type":  "application/json",
			"cache-control": "no-store",
		},
	}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/chat-widget-relay/internal/chat"
)

// DefaultPath is where the relay endpoint is mounted.
const DefaultPath = "/api/chat"

const chatRequestFailed = "Chat request failed"

// RequestError is returned when the relay answers with a non-2xx status.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Client performs one chat exchange per call against the relay endpoint.
// It holds no conversation state.
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
	timeout    time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithPath overrides the relay path.
func WithPath(path string) Option {
	return func(c *Client) {
		if path = strings.TrimSpace(path); path != "" {
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			c.path = path
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each exchange on the client side. It applies to the
// final HTTP client regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for the relay served at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		path:       DefaultPath,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// SendChat posts text as a single user message and returns the assistant
// reply. A missing message.content yields an empty string.
func (c *Client) SendChat(ctx context.Context, text string) (string, error) {
	reply, err := c.Send(ctx, text)
	if err != nil {
		return "", err
	}
	return reply.Message.Content, nil
}

// Send performs one exchange and returns the decoded reply. A missing or
// unknown role is reported as assistant.
func (c *Client) Send(ctx context.Context, text string) (chat.Reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(chat.NewUserRequest(text))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("chatclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(payload))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("chatclient: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		raw = nil
	}
	envelope := decodeEnvelope(raw)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return chat.Reply{}, &RequestError{Status: resp.StatusCode, Message: failureMessage(envelope)}
	}
	return decodeReply(raw, envelope), nil
}

// decodeEnvelope returns nil when the body is not JSON.
func decodeEnvelope(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// failureMessage prefers the envelope's error, then detail, then a fixed
// fallback.
func failureMessage(envelope any) string {
	obj, _ := envelope.(map[string]any)
	for _, field := range []string{"error", "detail"} {
		if s, ok := truthyString(obj[field]); ok {
			return s
		}
	}
	return chatRequestFailed
}

// decodeReply reads the typed reply shape and falls back to replyContent
// when message.content is not a string.
func decodeReply(raw []byte, envelope any) chat.Reply {
	var reply chat.Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		reply = chat.Reply{Message: chat.Message{Content: replyContent(envelope)}}
	}
	if !reply.Message.Role.Valid() {
		reply.Message.Role = chat.RoleAssistant
	}
	return reply
}

// replyContent extracts message.content, rendering non-string values the way
// they appear in JSON.
func replyContent(envelope any) string {
	obj, _ := envelope.(map[string]any)
	msg, _ := obj["message"].(map[string]any)
	switch v := msg["content"].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func truthyString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return "true", val
	case json.Number:
		if f, err := val.Float64(); err == nil && f == 0 {
			return "", false
		}
		return val.String(), true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	unknownUpstreamError = "Unknown upstream error"
	proxyFailed          = "Proxy failed"
)

// detailFields is the order in which an upstream failure body is searched
// for a human readable detail.
var detailFields = []string{"detail", "error", "message", "raw"}

// Envelope is the failure shape returned to the widget. Upstream is omitted
// for local failures.
type Envelope struct {
	Error    string          `json:"error"`
	Upstream json.RawMessage `json:"upstream,omitempty"`
}

// upstreamBody is the upstream response as received and as the relay
// understands it.
type upstreamBody struct {
	text   string
	json   []byte // valid JSON: the verbatim body, or {"raw": text}
	parsed any
}

// parseUpstreamBody keeps the body verbatim when it is JSON, otherwise wraps
// the text as {"raw": text}.
func parseUpstreamBody(raw []byte) (upstreamBody, error) {
	body := upstreamBody{text: string(raw)}
	if json.Valid(raw) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&body.parsed); err == nil {
			body.json = raw
			return body, nil
		}
	}

	wrapped := map[string]any{"raw": body.text}
	data, err := encodeJSON(wrapped)
	if err != nil {
		return upstreamBody{}, fmt.Errorf("wrap upstream body: %w", err)
	}
	body.json = data
	body.parsed = wrapped
	return body, nil
}

// upstreamDetail picks the first truthy detail field, then the raw text, then
// a fixed fallback.
func upstreamDetail(body upstreamBody) string {
	if obj, ok := body.parsed.(map[string]any); ok {
		for _, field := range detailFields {
			if s, ok := truthyString(obj[field]); ok {
				return s
			}
		}
	}
	if body.text != "" {
		return body.text
	}
	return unknownUpstreamError
}

// truthyString renders v when it is a present, non-empty, non-zero, non-false
// value. Objects and arrays render as compact JSON.
func truthyString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return "true", val
	case json.Number:
		f, err := val.Float64()
		if err == nil && f == 0 {
			return "", false
		}
		return val.String(), true
	case float64:
		if val == 0 {
			return "", false
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		data, err := encodeJSON(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

func upstreamFailure(status int, body upstreamBody) ([]byte, error) {
	return encodeJSON(Envelope{
		Error:    fmt.Sprintf("Upstream %d: %s", status, upstreamDetail(body)),
		Upstream: json.RawMessage(body.json),
	})
}

// localFailure builds the body for failures that happened on our side of the
// upstream call. It never fails.
func localFailure(err error, timeout time.Duration) []byte {
	data, encErr := encodeJSON(Envelope{Error: localMessage(err, timeout)})
	if encErr != nil {
		return []byte(`{"error":"` + proxyFailed + `"}`)
	}
	return data
}

func localMessage(err error, timeout time.Duration) string {
	if errors.Is(err, ErrUpstreamTimeout) {
		return fmt.Sprintf("Upstream timeout (%ss). Try again.", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return proxyFailed
}

// encodeJSON marshals without HTML escaping so passthrough content keeps its
// original characters.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

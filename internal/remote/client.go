// Package remote talks to the authoritative remote service over JSON/HTTP with
// the session's bearer token.
//
// Every failure is classified as ErrAuthExpired, *NetworkError or *RemoteError.
// Mutating calls that fail for lack of network are handed to a Replayer unless
// the caller opts out with WithoutReplay.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mrlokans/caresync/internal/events"
	"github.com/mrlokans/caresync/internal/session"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4096
)

// Publisher is the part of the event bus the client needs.
type Publisher interface {
	Publish(e events.Event)
}

// Request is a call captured for later replay.
type Request struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Replayer accepts requests that could not be sent.
type Replayer interface {
	EnqueueReplay(ctx context.Context, req Request) error
}

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	session    *session.Context
	bus        Publisher
	replayer   Replayer
}

func NewClient(cfg Config, sess *session.Context, bus Publisher) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		session:    sess,
		bus:        bus,
	}
}

// SetReplayer installs the retry queue for mutating calls issued offline.
func (c *Client) SetReplayer(r Replayer) {
	c.replayer = r
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type callOptions struct {
	noReplay bool
}

type CallOption func(*callOptions)

// WithoutReplay keeps a failed call out of the retry queue.
func WithoutReplay() CallOption {
	return func(o *callOptions) { o.noReplay = true }
}

// Call sends one request. body may be nil, raw JSON bytes, or any value to marshal.
func (c *Client) Call(ctx context.Context, method, path string, body any, opts ...CallOption) (*Response, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
	}

	var resp *Response
	if !c.session.Online() {
		err = &NetworkError{Method: method, Path: path, Err: errOffline}
	} else {
		resp, err = c.do(ctx, method, path, payload)
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) && !o.noReplay && isMutating(method) && c.replayer != nil {
		req := Request{Method: method, Path: path, Body: payload}
		if qErr := c.replayer.EnqueueReplay(ctx, req); qErr != nil {
			log.Printf("Remote: failed to queue %s %s for replay: %v", method, path, qErr)
		} else {
			netErr.Queued = true
		}
	}
	return resp, err
}

// Probe checks reachability of path. Any HTTP response counts as reachable.
// It ignores the session's online flag and sends no credentials.
func (c *Client) Probe(ctx context.Context, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Method: http.MethodGet, Path: path, Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &Response{StatusCode: httpResp.StatusCode, Body: data}, nil
	}

	msg := errorMessage(data)
	if isAuthFailure(httpResp.StatusCode, msg) {
		c.expireSession(method, path, msg)
		return nil, ErrAuthExpired
	}
	return nil, &RemoteError{StatusCode: httpResp.StatusCode, Message: msg}
}

func (c *Client) expireSession(method, path, msg string) {
	log.Printf("Remote: %s %s rejected the session (%s), clearing token", method, path, msg)
	c.session.ClearToken()
	if c.bus != nil {
		c.bus.Publish(events.Event{Type: events.AuthExpired})
	}
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// isAuthFailure reports a 401/403 whose message signals an expired or invalid token.
func isAuthFailure(status int, msg string) bool {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "expired") || strings.Contains(lower, "invalid")
}

// errorMessage pulls the server's message out of a JSON error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch e := parsed.Error.(type) {
		case string:
			if e != "" {
				return e
			}
		case map[string]any:
			if m, ok := e["message"].(string); ok && m != "" {
				return m
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Detail != "" {
			return parsed.Detail
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}

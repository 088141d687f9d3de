// Package backend talks to the laboratory REST API that owns every entity
// shown in the console.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/datainovate/labconsole/internal/platform/httpx"
)

// ErrUnauthorized signals that the backend rejected the bearer token. The
// session holding it must be cleared.
var ErrUnauthorized = httpx.ErrUnauthorized

// StatusError describes a non-2xx backend response.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("backend: %s %s: status %d", e.Method, e.Path, e.Status)
}

// Unwrap maps the status onto the shared sentinel errors.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return httpx.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return httpx.ErrForbidden
	case e.Status == http.StatusNotFound:
		return httpx.ErrNotFound
	case e.Status == http.StatusBadRequest, e.Status == http.StatusUnprocessableEntity:
		return httpx.ErrValidation
	case e.Status >= http.StatusInternalServerError:
		return httpx.ErrUpstream
	default:
		return nil
	}
}

// Observer receives one call per completed backend round trip. Status is 0
// when no response arrived.
type Observer interface {
	ObserveBackend(method string, status int, elapsed time.Duration)
}

// Client wraps interactions with the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	reads      singleflight.Group
}

// NewClient constructs a new client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithObserver attaches o to the client and returns it.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observer != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.observer.ObserveBackend(method, status, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w: %v", method, path, httpx.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(payload)}
		if resp.StatusCode >= 500 {
			c.logger.Warn("backend error", slog.String("method", method), slog.String("path", path), slog.Int("status", resp.StatusCode))
		}
		return nil, statusErr
	}
	return payload, nil
}

// get collapses identical concurrent reads made with the same token. The
// shared round trip is detached from any single caller's cancellation and
// bounded by the client timeout; each caller still returns on its own ctx.
func (c *Client) get(ctx context.Context, path, token string) ([]byte, error) {
	key := token + " " + path
	detached := context.WithoutCancel(ctx)
	results := c.reads.DoChan(key, func() (any, error) {
		return c.do(detached, http.MethodGet, path, token, nil)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("backend: GET %s: %w", path, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func errorMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

// unwrapData strips the {"data": ...} envelope used by most endpoints,
// including one nested level produced by paginated listings.
func unwrapData(payload []byte) json.RawMessage {
	raw := json.RawMessage(bytes.TrimSpace(payload))
	for i := 0; i < 2; i++ {
		if len(raw) == 0 || raw[0] != '{' {
			return raw
		}
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return raw
		}
		inner, ok := envelope["data"]
		if !ok {
			return raw
		}
		raw = inner
	}
	return raw
}

func decode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("backend: decode: %w", err)
	}
	return nil
}

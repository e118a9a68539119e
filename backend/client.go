// Package backend is the typed client of the marketing backend. Analysis
// calls are plain request/response exchanges; media and remix jobs are
// started here and polled through JobStatus by the task package.
// Nothing in this package retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketingflow/logging"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 16 << 20

// Client talks to one backend instance.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
	requestTimeout time.Duration
	schemas        *schemaSet
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRequestTimeout bounds analysis calls and job starts. Zero disables it.
// Status polls are bounded by the caller's context instead.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// NewClient validates baseURL and compiles the payload schemas.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be an absolute http(s) URL", baseURL)
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		schemas:    schemas,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "backend")
	return c, nil
}

// BaseURL returns the normalized API base.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL turns a backend-relative locator such as a download_url into
// an absolute URL. Absolute locators are returned unchanged.
func (c *Client) ResolveURL(locator string) string {
	if locator == "" {
		return ""
	}
	lower := strings.ToLower(locator)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return locator
	}
	if !strings.HasPrefix(locator, "/") {
		locator = "/" + locator
	}
	return c.baseURL + locator
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func (c *Client) newJSONRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do performs exactly one exchange. A nil error means the backend answered,
// whatever the status code.
func (c *Client) do(op string, req *http.Request) (*response, error) {
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("Accept", "application/json")
	logger := logging.WithRequestID(c.logger, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("backend request failed", "op", op, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	logger.Debug("backend response",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)
	return &response{status: resp.StatusCode, body: body}, nil
}

// run is the synchronous request runner: one exchange, a 2xx body decoded
// into out, any other status turned into a RequestError carrying the
// backend's error or detail text.
func (c *Client) run(op string, req *http.Request, out any) (int, error) {
	res, err := c.do(op, req)
	if err != nil {
		return 0, err
	}
	if !res.ok() {
		return res.status, &RequestError{Op: op, StatusCode: res.status, ServerMessage: serverMessage(res.body)}
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return res.status, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return res.status, nil
}

// serverMessage extracts the backend's explanation from an error body,
// preferring "error" over "detail".
func serverMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail"} {
		if msg := messageText(payload[key]); msg != "" {
			return msg
		}
	}
	return ""
}

// messageText flattens a string or a list of validation entries.
func messageText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, item := range t {
			switch e := item.(type) {
			case string:
				parts = append(parts, e)
			case map[string]any:
				if msg, ok := e["msg"].(string); ok && msg != "" {
					parts = append(parts, msg)
				}
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

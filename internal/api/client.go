// Package api is the REST client for the complaint service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/logging"
	"github.com/nhle/complaint-desk/internal/metrics"
)

// TokenSource supplies the bearer credential for each request. An empty
// token sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Client is a thin HTTP client for the complaint REST API. It handles
// bearer authentication, request ids and JSON (de)serialization. Failed
// requests are never retried.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	log        *logrus.Entry
	metrics    *metrics.Metrics

	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger logs every request at debug level and failures at warn.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) { c.log = logging.Component(log, "api") }
}

// WithMetrics records request counts, durations and in-flight gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// OnUnauthorized registers fn to be called whenever the server rejects
// the credential. The session collaborator uses it to invalidate itself.
func OnUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. http://localhost:5000/api).
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.Component(nil, "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) get(ctx context.Context, route, path string, result interface{}) error {
	return c.doJSON(ctx, http.MethodGet, route, path, nil, result)
}

// doJSON sends body as JSON (when non-nil) and unmarshals the response
// into result (when non-nil).
func (c *Client) doJSON(
	ctx context.Context,
	method string,
	route string,
	path string,
	body interface{},
	result interface{},
) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, route, path, reader, contentType, result)
}

// do builds the request, handles auth and request ids, classifies the
// response and decodes it. route is the templated path used as a metric
// label so ids don't explode label cardinality.
func (c *Client) do(
	ctx context.Context,
	method string,
	route string,
	path string,
	body io.Reader,
	contentType string,
	result interface{},
) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	if c.metrics != nil {
		c.metrics.RequestsInFlight.WithLabelValues(route).Inc()
		defer c.metrics.RequestsInFlight.WithLabelValues(route).Dec()
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Debug("request aborted")
			c.observe(method, route, "aborted", elapsed)
			return fmt.Errorf("%s %s: %w", method, path, ErrAborted)
		}
		log.WithError(err).Warn("request failed")
		c.observe(method, route, "error", elapsed)
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("%s %s: %w", method, path, ErrAborted)
		}
		return fmt.Errorf("reading response body: %w", err)
	}

	c.observe(method, route, strconv.Itoa(resp.StatusCode), elapsed)
	log = log.WithFields(logrus.Fields{
		"status":      resp.StatusCode,
		"duration_ms": elapsed.Milliseconds(),
	})

	if resp.StatusCode == http.StatusUnauthorized {
		log.Warn("credential rejected")
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &AuthError{Method: method, Path: path, Message: serverMessage(respBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("request returned error status")
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    serverMessage(respBody),
		}
	}

	log.Debug("request completed")

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) observe(method, route, status string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RequestCounter.WithLabelValues(method, route, status).Inc()
	c.metrics.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// serverMessage extracts {"message": ...} from an error body, falling
// back to the raw text.
func serverMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

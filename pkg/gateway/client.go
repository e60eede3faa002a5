// Package gateway mediates every authenticated HTTP call to the
// backend. It owns the outgoing request shape (JSON bodies, CSRF
// header, request IDs), executes calls with the browser-style cookie
// jar so the server session cookie rides along, and normalizes every
// non-success response into a typed apierror.Error.
//
// The gateway has no session state of its own: callers (the session
// manager, the endpoint clients) interpret its results.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/playbymail/ottoclient/pkg/apierror"
	"github.com/playbymail/ottoclient/pkg/csrf"
)

// sessionPath is the endpoint that validates the session cookie and
// issues the CSRF token.
const sessionPath = "/api/session"

// Config configures the gateway client.
type Config struct {
	// Timeout is the per-request timeout applied to the underlying
	// HTTP client. Default: 30 seconds.
	Timeout time.Duration

	// UserAgent is sent on every request. Default: "ottoclient".
	UserAgent string

	// TracerName names the OpenTelemetry tracer. Default: "ottoclient".
	TracerName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		UserAgent:  "ottoclient",
		TracerName: "ottoclient",
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached if the provided client has none, since the session cookie
// must survive across requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus metrics. Metrics are optional; a nil
// Metrics records nothing.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(c *Client) {
		c.config = config
	}
}

// Client is the request gateway. Safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	config  Config
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	tokens  *csrf.Cache
}

// New creates a gateway client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: base URL %q must be absolute", baseURL)
	}

	c := &Client{
		base:   base,
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: c.config.Timeout}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("gateway: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger.With("component", "gateway")
	c.tracer = otel.Tracer(c.config.TracerName)
	c.tokens = csrf.NewCache(c.fetchToken, logger)
	return c, nil
}

// Tokens returns the CSRF token cache. The session manager clears it
// when the client returns to the anonymous state.
func (c *Client) Tokens() *csrf.Cache { return c.tokens }

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Get performs a GET request. No CSRF token is attached; the session
// cookie alone authenticates reads.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil, false)
}

// Post performs a POST request with a JSON body, acquiring the CSRF
// token first.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body, true)
}

// Patch performs a PATCH request with a JSON body, acquiring the CSRF
// token first.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, body, true)
}

// Put performs a PUT request with a JSON body, acquiring the CSRF
// token first.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, body, true)
}

// do builds, traces, and executes one request.
func (c *Client) do(ctx context.Context, method, path string, body any, withToken bool) (json.RawMessage, error) {
	var token string
	if withToken {
		// A mutation never reaches the wire without a token. An
		// acquisition failure is reported as a network-kind error and
		// the mutation is not attempted.
		t, err := c.tokens.GetOrFetch(ctx)
		if err != nil {
			c.observe(method, "token_error", 0)
			return nil, apierror.Network(fmt.Sprintf("%s %s: csrf token acquisition failed", method, path), err)
		}
		token = t
	}

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("ottoclient %s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	raw, status, err := c.roundTrip(ctx, method, path, body, token)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		span.SetStatus(codes.Ok, "")
	}

	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.observe(method, label, duration.Seconds())

	c.logger.Debug("request complete",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"error", err)

	return raw, err
}

// roundTrip performs the HTTP exchange and classifies the response.
func (c *Client) roundTrip(ctx context.Context, method, path string, body any, token string) (json.RawMessage, int, error) {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, apierror.Network(fmt.Sprintf("%s %s: encode request body", method, path), err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), payload)
	if err != nil {
		return nil, 0, apierror.Network(fmt.Sprintf("%s %s: build request", method, path), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, apierror.Network(fmt.Sprintf("%s %s: %v", method, path, err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, apierror.Network(fmt.Sprintf("%s %s: read response body", method, path), err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, resp.StatusCode, nil
	}
	return nil, resp.StatusCode, classify(method, path, resp.StatusCode, raw)
}

// sessionEnvelope is the part of the session-status payload the token
// fetcher cares about.
type sessionEnvelope struct {
	CSRF string `json:"csrf"`
}

// fetchToken backs the CSRF cache: one session-status request, token
// extracted from the payload.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	raw, status, err := c.roundTrip(ctx, http.MethodGet, sessionPath, nil, "")
	c.observeTokenFetch(err == nil)
	if err != nil {
		return "", err
	}
	var envelope sessionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", apierror.Server(status, "session payload is not valid JSON")
	}
	if envelope.CSRF == "" {
		return "", apierror.Server(status, "session payload carries no csrf token")
	}
	return envelope.CSRF, nil
}

func (c *Client) observe(method, status string, seconds float64) {
	if c.metrics != nil {
		c.metrics.observeRequest(method, status, seconds)
	}
}

func (c *Client) observeTokenFetch(ok bool) {
	if c.metrics != nil {
		c.metrics.observeTokenFetch(ok)
	}
}

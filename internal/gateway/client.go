// Package gateway is the storefront's client for the backend auth API.
//
// Every call maps to one backend endpoint. Calls that establish an identity
// (login, OAuth, refresh) are sent without credentials; every other call
// carries the current access token as a bearer credential, taken from the
// oauth2.TokenSource bound with WithTokenSource on each request.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/storefront/internal/auth"
	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
)

// RequestIDHeader carries the correlation id of every backend request.
const RequestIDHeader = "X-Request-ID"

// Config configures the backend client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1/.
	BaseURL string

	// Timeout bounds a single attempt. Zero means 15s.
	Timeout time.Duration

	// RetryMax is the number of retries for connection errors and 5xx
	// responses. 4xx responses are never retried.
	RetryMax int

	// UserAgent is sent with every request.
	UserAgent string
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger used for request and retry logging.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records one gateway request counter per call.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the retrying base client. Tests use it to talk to
// an httptest server without retries.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

// Client is the backend API client.
type Client struct {
	baseURL   *url.URL
	userAgent string
	base      *http.Client
	authed    *http.Client
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// New creates a client for cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, sferrors.NewConfigInvalidError("backend.base_url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, sferrors.NewConfigInvalidError(fmt.Sprintf("backend.base_url %q is not an absolute URL", cfg.BaseURL))
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		baseURL:   base,
		userAgent: cfg.UserAgent,
		logger:    log.DefaultLogger(),
	}
	if c.userAgent == "" {
		c.userAgent = "storefront"
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = newRetryingClient(cfg, c.logger)
	}
	return c, nil
}

func newRetryingClient(cfg Config, logger *log.Logger) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = logger.With("component", "gateway")
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// WithTokenSource returns a copy of c whose authenticated calls take their
// bearer credential from ts. The copy shares the underlying transport.
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	clone := *c
	clone.authed = &http.Client{
		Timeout: c.base.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   c.base.Transport,
		},
	}
	return &clone
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Ping checks that the backend answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(withMethod(ctx, http.MethodHead), http.MethodHead, c.baseURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.base.Do(req)
	if err != nil {
		return sferrors.NewBackendUnreachableError(c.baseURL.String(), err)
	}
	resp.Body.Close()
	return nil
}

// call performs one JSON request against endpoint and decodes the response
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, authenticated bool, method, endpoint string, in, out any) error {
	hc := c.base
	if authenticated {
		if c.authed == nil {
			return auth.NewError(auth.ErrNotSignedIn, auth.MsgNotSignedIn, map[string]interface{}{"endpoint": endpoint})
		}
		hc = c.authed
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(withMethod(ctx, method), method, c.baseURL.JoinPath(endpoint).String(), body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	requestID := log.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := c.logger.With("endpoint", endpoint, "request_id", requestID)
	resp, err := hc.Do(req)
	if err != nil {
		c.metrics.RecordGatewayRequest(endpoint, "error")
		if tokenErr := tokenSourceError(err); tokenErr != nil {
			return tokenErr
		}
		logger.Warn("backend request failed", "error", err)
		return sferrors.NewBackendUnreachableError(c.baseURL.String(), err)
	}
	defer resp.Body.Close()

	c.metrics.RecordGatewayRequest(endpoint, strconv.Itoa(resp.StatusCode))
	logger.Debug("backend response", "status", resp.StatusCode)

	return parseResponse(endpoint, resp, out)
}

// tokenSourceError unwraps a failure raised by the bound token source before
// the request left the process.
func tokenSourceError(err error) error {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return nil
}

// parseResponse parses the response body into out.
func parseResponse(endpoint string, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newHTTPError(endpoint, resp.StatusCode, data)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sferrors.Wrap(sferrors.ErrCodeBackendResponse, fmt.Sprintf("failed to decode %s response", endpoint), err)
	}
	return nil
}

// Package apiclient is an HTTP client whose every attempt is coordinated by
// a hub: admission, breaker accounting, and metrics happen per attempt, and
// the API's advisory RequestTimeout and MaxRetries are applied here on the
// caller side.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/apihub/internal/coordination"
	"github.com/Iron-Ham/apihub/internal/errors"
	"github.com/Iron-Ham/apihub/internal/logging"
)

const (
	defaultBackoff = 100 * time.Millisecond
	defaultMaxWait = 10 * time.Second
	maxBodyBytes   = 10 << 20
	maxErrorBody   = 512
)

// StatusError is the upstream failure recorded for 429 and 5xx responses.
// Other statuses are returned as ordinary responses.
type StatusError struct {
	StatusCode int
	Status     string
	// Body is the start of the response body.
	Body string
	// RetryAfter is parsed from the Retry-After header, if present.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %s", e.Status)
	}
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}

// IsRetryable reports whether the status is worth retrying. It lets
// errors.IsRetryable classify StatusErrors.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Severity reports upstream status failures as warnings; transport errors
// keep the default error severity.
func (e *StatusError) Severity() errors.Severity {
	return errors.SeverityWarning
}

// isFailureStatus reports whether code counts against the API's breaker.
func isFailureStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues HTTP requests to one registered API.
type Client struct {
	hub     *coordination.Hub
	api     string
	baseURL string
	http    *http.Client
	logger  *logging.Logger

	backoff time.Duration
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL sets the URL that request paths are resolved against.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBackoff sets the first retry delay for failures that carry no hint.
// Later retries double it.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithMaxWait caps any single retry delay. A rate-limit hint longer than
// this is returned to the caller instead of waited out.
func WithMaxWait(d time.Duration) Option {
	return func(c *Client) { c.maxWait = d }
}

// New returns a Client for api, which must already be registered with hub.
func New(hub *coordination.Hub, api string, opts ...Option) (*Client, error) {
	if _, err := hub.Config(api); err != nil {
		return nil, err
	}
	c := &Client{
		hub:     hub,
		api:     api,
		http:    http.DefaultClient,
		logger:  logging.NopLogger(),
		backoff: defaultBackoff,
		maxWait: defaultMaxWait,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithAPI(api)
	return c, nil
}

// API returns the API name requests are coordinated under.
func (c *Client) API() string { return c.api }

// Get issues a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Do issues a request, retrying up to the API's MaxRetries.
//
// Each attempt passes through the hub and is bounded by the API's
// RequestTimeout. Retries happen after rate-limit rejections whose hint is
// within the max wait, after retryable upstream statuses, and after
// transport errors. CircuitOpen and Unregistered errors are returned at
// once. On failure the last attempt's response, if any, is returned with
// the error.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	cfg, err := c.hub.Config(c.api)
	if err != nil {
		return nil, err
	}

	url := c.resolve(path)
	attempts := cfg.Retries() + 1
	for attempt := 1; ; attempt++ {
		resp, err := coordination.Call(c.hub, c.api, func() (*Response, error) {
			return c.attempt(ctx, cfg.RequestTimeout, method, url, body, header)
		})
		if err == nil {
			return resp, nil
		}

		wait, retry := c.retryDelay(ctx, err, attempt)
		if !retry || attempt >= attempts {
			return resp, err
		}

		c.logger.Debug("retrying request",
			"method", method,
			"url", url,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return resp, err
		}
	}
}

// Once issues a single coordinated attempt with no retries.
func (c *Client) Once(ctx context.Context, method, path string) (*Response, error) {
	cfg, err := c.hub.Config(c.api)
	if err != nil {
		return nil, err
	}
	url := c.resolve(path)
	return coordination.Call(c.hub, c.api, func() (*Response, error) {
		return c.attempt(ctx, cfg.RequestTimeout, method, url, nil, nil)
	})
}

func (c *Client) resolve(path string) string {
	if c.baseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) attempt(ctx context.Context, timeout time.Duration, method, url string, body []byte, header http.Header) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if isFailureStatus(httpResp.StatusCode) {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp, &StatusError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       snippet,
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

// retryDelay decides whether err after the given attempt is worth another
// try, and how long to wait first.
func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}

	switch errors.KindOf(err) {
	case errors.KindUnregistered, errors.KindCircuitOpen:
		return 0, false
	case errors.KindRateLimited:
		hint, _ := errors.RetryAfter(err)
		if hint > c.maxWait {
			return 0, false
		}
		return hint, true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if !statusErr.IsRetryable() {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return min(statusErr.RetryAfter, c.maxWait), true
		}
	}

	// Transport errors and hintless statuses back off exponentially.
	wait := c.backoff << (attempt - 1)
	if wait <= 0 || wait > c.maxWait {
		wait = c.maxWait
	}
	return wait, true
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP-date
// values are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

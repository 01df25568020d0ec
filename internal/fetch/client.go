package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/robalyx/bgcheck/internal/setup/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// MaxBodySize is the largest response body read from an upstream.
	MaxBodySize = 8 << 20

	userAgent = "bgcheck/1.0 (+https://github.com/robalyx/bgcheck)"
)

// ErrInvalidRequest is returned when a request cannot be built.
var ErrInvalidRequest = errors.New("invalid request")

// errNonRetryable stops the retry loop for terminal statuses.
var errNonRetryable = errors.New("non-retryable status")

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Header  http.Header
	Body    any           // Encoded as JSON when non-nil
	Timeout time.Duration // Per-attempt timeout, falls back to the policy default
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON response body into v.
func (r *Response) Decode(v any) error {
	if err := sonic.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Client performs outbound calls with timeout, retry and backoff.
type Client struct {
	name       string
	httpClient *http.Client
	policy     Policy
	chain      middleware.NextFunc
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	middlewares []middleware.Middleware
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithMiddleware appends middlewares to the chain. The first middleware is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// New creates a Client for the named upstream class.
func New(name string, policy Policy, zapLogger *zap.Logger, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}

	clientLogger := zapLogger.Named("fetch_" + name)
	for _, mw := range o.middlewares {
		mw.SetLogger(logger.New(clientLogger))
	}

	return &Client{
		name:       name,
		httpClient: o.httpClient,
		policy:     policy.withDefaults(PrimaryPolicy()),
		chain:      buildChain(o.middlewares),
		logger:     clientLogger,
		tracer:     otel.Tracer("github.com/robalyx/bgcheck/internal/fetch"),
	}
}

// Policy returns the effective retry policy of the client.
func (c *Client) Policy() Policy {
	return c.policy
}

// Do sends the request, retrying transport failures, 429 and 5xx responses.
// Any other non-2xx status is returned immediately as a KindStatus error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(req.URL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("%w: bad url %q", ErrInvalidRequest, req.URL)
	}

	if len(req.Query) > 0 {
		q := target.Query()
		for key, values := range req.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}

		target.RawQuery = q.Encode()
	}

	var body []byte
	if req.Body != nil {
		body, err = sonic.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.policy.DefaultTimeout
	}

	ctx, span := c.tracer.Start(ctx, "fetch "+target.Host, trace.WithAttributes(
		attribute.String("fetch.client", c.name),
		attribute.String("http.method", method),
		attribute.String("http.path", target.Path),
	))
	defer span.End()

	var (
		attempts int
		last     *Response
		lastErr  error
		curve    = newLinearBackOff(c.policy)
	)

	operation := func() error {
		attempts++

		resp, err := c.attempt(ctx, method, target.String(), body, req.Header, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			last, lastErr = nil, err

			return err
		}

		last = resp

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case isRetryableStatus(resp.StatusCode):
			if d := retryAfter(resp.Header); d > 0 {
				curve.useHint(d)
			}

			lastErr = ErrRetryableStatus

			return lastErr
		default:
			return backoff.Permanent(errNonRetryable)
		}
	}

	notify := func(err error, wait time.Duration) {
		fields := []zap.Field{
			zap.String("url", target.Path),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		}
		if last != nil {
			fields = append(fields, zap.Int("status", last.StatusCode))
		}

		c.logger.Debug("Retrying request", fields...)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(curve, uint64(c.policy.MaxRetries)), ctx) //nolint:gosec // non-negative
	retryErr := backoff.RetryNotify(operation, b, notify)

	span.SetAttributes(attribute.Int("fetch.attempts", attempts))
	if last != nil {
		span.SetAttributes(attribute.Int("http.status_code", last.StatusCode))
	}

	if retryErr == nil {
		return last, nil
	}

	fetchErr := &Error{
		Method:   method,
		URL:      target.Host + target.Path,
		Attempts: attempts,
	}

	switch {
	case ctx.Err() != nil:
		fetchErr.Kind = KindCanceled
		fetchErr.Err = ctx.Err()
	case errors.Is(retryErr, errNonRetryable) && last != nil:
		fetchErr.Kind = KindStatus
		fetchErr.StatusCode = last.StatusCode
	default:
		fetchErr.Kind = KindExhausted
		fetchErr.Err = lastErr
		if last != nil {
			fetchErr.StatusCode = last.StatusCode
		}
	}

	span.RecordError(fetchErr)
	span.SetStatus(codes.Error, fetchErr.Kind.String())

	if fetchErr.Kind == KindExhausted {
		c.logger.Warn("Request failed after retries",
			zap.String("url", fetchErr.URL),
			zap.Int("attempts", attempts),
			zap.Int("status", fetchErr.StatusCode),
			zap.Error(lastErr))
	}

	return nil, fetchErr
}

// attempt performs a single request under its own timeout and reads the full body.
func (c *Client) attempt(
	ctx context.Context, method, target string, body []byte, header http.Header, timeout time.Duration,
) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, err
	}

	for key, values := range header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.chain(attemptCtx, c.httpClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// buildChain wraps the transport with the middlewares, first middleware outermost.
func buildChain(mws []middleware.Middleware) middleware.NextFunc {
	next := middleware.NextFunc(func(ctx context.Context, httpClient *http.Client, req *http.Request) (*http.Response, error) {
		return httpClient.Do(req.WithContext(ctx))
	})

	for i := len(mws) - 1; i >= 0; i-- {
		mw, inner := mws[i], next
		next = func(ctx context.Context, httpClient *http.Client, req *http.Request) (*http.Response, error) {
			return mw.Process(ctx, httpClient, req, inner)
		}
	}

	return next
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

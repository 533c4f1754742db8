// Package worker implements the outbound HTTP client for the automation
// worker: signed requests, a circuit breaker, and error classification.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/config"
	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/model"
)

// Response is the worker's reply to a coordination call. Non-2xx replies
// are returned as a Response, not an error; transport-level problems
// (connection refused, timeout, open breaker) come back as errors.
type Response struct {
	StatusCode int
	Body       map[string]any
}

// OK reports whether the worker accepted the call.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Message extracts the human-readable message from the worker's reply
// body, if any.
func (r Response) Message() string {
	for _, key := range []string{"message", "error", "detail"} {
		if v, ok := r.Body[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Client sends signed requests to the automation worker. Every request
// carries the shared API key, the per-process token, a timestamp, and an
// HMAC signature over the exact marshalled body bytes. Calls are never
// retried; failure handling belongs to the dispatcher.
type Client struct {
	baseURL string
	apiKey  string
	signer  *auth.Signer
	http    *http.Client
	breaker *CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client. For testing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithMetrics attaches request metrics.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the client clock. For testing.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient creates a worker client from config.
func NewClient(cfg config.WorkerConfig, signer *auth.Signer, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cb := cfg.CircuitBreaker
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		signer:  signer,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the circuit breaker for readiness reporting.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Send performs a single signed call against the worker. token is the
// per-process token included as X-Token; payload is marshalled to JSON and
// the signature covers exactly those bytes.
func (c *Client) Send(ctx context.Context, method, path, token string, payload any) (Response, error) {
	ctx, span := observability.StartSpan(ctx, "worker.send",
		observability.AttrWorkerPath.String(path))
	resp, err := c.send(ctx, method, path, token, payload)
	if err == nil {
		span.SetAttributes(observability.AttrWorkerStatus.Int(resp.StatusCode))
	}
	observability.EndSpanWithError(span, err)
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path, token string, payload any) (Response, error) {
	if err := c.breaker.Allow(); err != nil {
		c.recordBreakerState()
		return Response{}, model.NewWorkerUnavailableError()
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("worker: marshal body: %w", err)
		}
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("worker: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderAPIKey, c.apiKey)
	if token != "" {
		req.Header.Set(auth.HeaderToken, token)
	}
	req.Header.Set(auth.HeaderTimestamp, auth.Timestamp(c.now()))
	req.Header.Set(auth.HeaderSignature, c.signer.Sign(bodyBytes))
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.recordBreakerState()
		c.logger.Warn("worker call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return Response{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		c.breaker.RecordFailure()
		c.recordBreakerState()
		return Response{}, fmt.Errorf("worker: read response: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordWorkerRequest(resp.StatusCode, time.Since(start))
	}

	// 4xx replies are worker decisions, not infrastructure failures; they
	// neither trip nor heal the breaker.
	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else if resp.StatusCode < 400 {
		c.breaker.RecordSuccess()
	}
	c.recordBreakerState()

	result := Response{StatusCode: resp.StatusCode}
	if len(respBody) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			result.Body = parsed
		}
	}
	return result, nil
}

func (c *Client) recordBreakerState() {
	if c.metrics != nil {
		c.metrics.WorkerCircuitBreakerState.Set(float64(c.breaker.State()))
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.NewWorkerTimeoutError()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewWorkerTimeoutError()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return model.NewWorkerUnavailableError()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.NewWorkerUnavailableError()
	}
	return fmt.Errorf("worker: request failed: %w", err)
}

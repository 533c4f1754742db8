// Package integration provides a reusable test harness for end-to-end
// testing of the relay server. It starts a full HTTP server with a mock
// automation worker, in-memory stores, and a test JWT issuer.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/command"
	"github.com/relayops/relay/internal/config"
	"github.com/relayops/relay/internal/event"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/internal/stream"
	"github.com/relayops/relay/internal/transport"
	"github.com/relayops/relay/internal/worker"
	"github.com/relayops/relay/model"
)

const (
	harnessSharedKey     = "integration-shared-key"
	harnessSigningSecret = "integration-signing-secret"
)

// TestHarness encapsulates a fully wired relay instance with a mock worker
// for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Worker        *MockWorker
	Processes     *process.Service
	Authority     *auth.Authority
	Signer        *auth.Signer
	Notifications *stream.NotificationService
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	breaker      config.CircuitBreakerConfig
	rateInterval time.Duration
	heartbeat    time.Duration
}

// WithCircuitBreaker overrides the worker circuit breaker settings.
func WithCircuitBreaker(cfg config.CircuitBreakerConfig) HarnessOption {
	return func(c *harnessConfig) { c.breaker = cfg }
}

// WithRateLimitInterval overrides the command minimum interval.
func WithRateLimitInterval(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.rateInterval = d }
}

// WithHeartbeat overrides the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.heartbeat = d }
}

// NewTestHarness wires the full server against memory stores and starts it.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := harnessConfig{
		breaker: config.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		rateInterval: 10 * time.Second,
		heartbeat:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&hc)
	}

	logger := zap.NewNop()
	issuer := newTokenIssuer(t)
	mockWorker := newMockWorker(t)

	signer := auth.NewSigner(harnessSigningSecret)
	authority := auth.NewAuthority(
		auth.NewMemoryTokenStore(), signer, harnessSharedKey,
		time.Hour, time.Minute,
		auth.WithAPIKeyStore(auth.NewMemoryAPIKeyStore()),
	)

	registry := stream.NewRegistry(16)
	notifications := stream.NewNotificationService(stream.NewMemoryNotificationStore(), registry)
	eventStore := event.NewMemoryStore()

	procs := process.NewService(process.NewMemoryStore(),
		process.WithCascades(eventStore, notifications))

	caller := worker.NewClient(config.WorkerConfig{
		BaseURL:        mockWorker.URL(),
		APIKey:         harnessSharedKey,
		SigningSecret:  harnessSigningSecret,
		Timeout:        2 * time.Second,
		CircuitBreaker: hc.breaker,
	}, signer)

	runner := command.NewRunner(2, 16)
	runner.Start(context.Background())
	t.Cleanup(runner.Shutdown)

	dispatcher := command.NewDispatcher(
		procs, caller, authority, notifications,
		command.NewMemoryRateLimiter(hc.rateInterval), runner,
	)
	ingestor := event.NewIngestor(eventStore, procs, registry, notifications)

	identityCfg := config.IdentityConfig{
		Issuer:       issuer.issuer,
		Audience:     issuer.audience,
		JWKSURL:      issuer.JWKSURL(),
		JWKSCacheTTL: time.Hour,
		Algorithms:   []string{"RS256"},
	}
	jwks := transport.NewJWKSClient(identityCfg.JWKSURL, identityCfg.JWKSCacheTTL, logger)

	handlers := &transport.Handlers{
		Processes:     procs,
		Dispatcher:    dispatcher,
		Ingestor:      ingestor,
		Notifications: notifications,
		Authority:     authority,
		SSE:           stream.NewSSEHandler(registry, hc.heartbeat, logger),
		Logger:        logger,
		Authenticate:  transport.JWTAuthenticator(identityCfg, jwks),
	}

	server := httptest.NewServer(handlers.NewRouter())
	t.Cleanup(server.Close)

	return &TestHarness{
		t:             t,
		server:        server,
		issuer:        issuer,
		Worker:        mockWorker,
		Processes:     procs,
		Authority:     authority,
		Signer:        signer,
		Notifications: notifications,
	}
}

// GenerateToken signs a JWT for the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken signs a JWT that is already past its expiry.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// URL returns the server's base URL.
func (h *TestHarness) URL() string {
	return h.server.URL
}

// Do sends a client request with the bearer token and returns the response.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// SignedWorker sends a worker request carrying the four evidence headers.
// An empty processToken omits the X-Token header.
func (h *TestHarness) SignedWorker(method, path, processToken string, body []byte) *http.Response {
	h.t.Helper()

	req, err := http.NewRequest(method, h.server.URL+path, bytes.NewReader(body))
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	req.Header.Set(auth.HeaderAPIKey, harnessSharedKey)
	if processToken != "" {
		req.Header.Set(auth.HeaderToken, processToken)
	}
	req.Header.Set(auth.HeaderTimestamp, auth.Timestamp(time.Now()))
	req.Header.Set(auth.HeaderSignature, h.Signer.Sign(body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// ReadJSON decodes and closes the response body.
func (h *TestHarness) ReadJSON(resp *http.Response, out any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		h.t.Fatalf("unmarshal response %q: %v", data, err)
	}
}

// ReadProcess decodes a {"process": ...} response body.
func (h *TestHarness) ReadProcess(resp *http.Response) model.Process {
	h.t.Helper()
	var body struct {
		Process model.Process `json:"process"`
	}
	h.ReadJSON(resp, &body)
	return body.Process
}

// StartProcess creates a pending process through the API and returns it.
func (h *TestHarness) StartProcess(token, stage string) model.Process {
	h.t.Helper()
	resp := h.Do(http.MethodPost, "/api/process", token, map[string]string{"stage": stage})
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("start process: status %d", resp.StatusCode)
	}
	return h.ReadProcess(resp)
}

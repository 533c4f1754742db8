package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/config"
	"github.com/relayops/relay/model"
)

const testSecret = "client-test-secret"

func newTestClient(t *testing.T, baseURL string, opts ...ClientOption) *Client {
	t.Helper()
	cfg := config.WorkerConfig{
		BaseURL:       baseURL,
		APIKey:        "worker-key",
		SigningSecret: testSecret,
		Timeout:       2 * time.Second,
	}
	return NewClient(cfg, auth.NewSigner(testSecret), opts...)
}

func TestClient_Send_SignsRequest(t *testing.T) {
	signer := auth.NewSigner(testSecret)

	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Send(context.Background(), http.MethodPost, "/automation/run", "tok123", map[string]string{"command": "restart"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("status = %d, want 2xx", resp.StatusCode)
	}
	if resp.Message() != "ok" {
		t.Errorf("message = %q, want ok", resp.Message())
	}

	if got := gotHeaders.Get(auth.HeaderAPIKey); got != "worker-key" {
		t.Errorf("api key header = %q", got)
	}
	if got := gotHeaders.Get(auth.HeaderToken); got != "tok123" {
		t.Errorf("token header = %q", got)
	}
	if gotHeaders.Get(auth.HeaderTimestamp) == "" {
		t.Error("timestamp header missing")
	}
	if !signer.Verify(gotBody, gotHeaders.Get(auth.HeaderSignature)) {
		t.Error("signature does not verify against the received body bytes")
	}
}

func TestClient_Send_NonSuccessIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"already processing"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Send(context.Background(), http.MethodPost, "/automation/run", "tok", nil)
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if resp.OK() {
		t.Fatal("409 reported as success")
	}
	if resp.Message() != "already processing" {
		t.Errorf("message = %q", resp.Message())
	}
}

func TestClient_Send_UnavailableWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // no listener left

	client := newTestClient(t, srv.URL)
	_, err := client.Send(context.Background(), http.MethodPost, "/automation/run", "tok", nil)
	if err == nil {
		t.Fatal("expected error from closed listener")
	}
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrWorkerUnavailable {
		t.Fatalf("error = %v, want WORKER_UNAVAILABLE envelope", err)
	}
}

func TestClient_Send_BreakerOpensAfterServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.WorkerConfig{
		BaseURL:       srv.URL,
		APIKey:        "worker-key",
		SigningSecret: testSecret,
		Timeout:       2 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
	}
	client := NewClient(cfg, auth.NewSigner(testSecret))

	for i := 0; i < 2; i++ {
		if _, err := client.Send(context.Background(), http.MethodPost, "/x", "", nil); err != nil {
			t.Fatalf("Send error on attempt %d: %v", i, err)
		}
	}

	_, err := client.Send(context.Background(), http.MethodPost, "/x", "", nil)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrWorkerUnavailable {
		t.Fatalf("error = %v, want WORKER_UNAVAILABLE from open breaker", err)
	}
}

func TestClient_Send_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := client.Send(context.Background(), http.MethodPost, "/slow", "", nil)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrWorkerTimeout {
		t.Fatalf("error = %v, want WORKER_TIMEOUT", err)
	}
}

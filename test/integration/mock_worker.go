package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ReceivedCommand is one request the mock worker recorded.
type ReceivedCommand struct {
	Method    string
	Path      string
	Headers   http.Header
	Body      []byte
	Command   string
	ProcessID string
}

// MockWorker is a fake automation worker endpoint. It records every
// received command and answers with a configurable response.
type MockWorker struct {
	mu       sync.Mutex
	server   *httptest.Server
	status   int
	body     map[string]any
	received []ReceivedCommand
}

// newMockWorker starts a mock worker that accepts everything.
func newMockWorker(t *testing.T) *MockWorker {
	t.Helper()

	w := &MockWorker{
		status: http.StatusOK,
		body:   map[string]any{"status": "ok"},
	}
	w.server = httptest.NewServer(http.HandlerFunc(w.handle))
	t.Cleanup(w.server.Close)
	return w
}

func (w *MockWorker) handle(rw http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var cmd struct {
		Command   string `json:"command"`
		ProcessID string `json:"process_id"`
	}
	json.Unmarshal(body, &cmd)

	w.mu.Lock()
	w.received = append(w.received, ReceivedCommand{
		Method:    r.Method,
		Path:      r.URL.Path,
		Headers:   r.Header.Clone(),
		Body:      body,
		Command:   cmd.Command,
		ProcessID: cmd.ProcessID,
	})
	status := w.status
	respBody := w.body
	w.mu.Unlock()

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(respBody)
}

// RespondWith sets the response returned to subsequent worker calls.
func (w *MockWorker) RespondWith(status int, body map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.body = body
}

// Received returns a copy of all recorded commands.
func (w *MockWorker) Received() []ReceivedCommand {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ReceivedCommand, len(w.received))
	copy(out, w.received)
	return out
}

// URL returns the mock worker's base URL.
func (w *MockWorker) URL() string {
	return w.server.URL
}

// Close shuts the mock worker down so calls to it fail at the transport
// level. Used to simulate an unreachable worker.
func (w *MockWorker) Close() {
	w.server.Close()
}

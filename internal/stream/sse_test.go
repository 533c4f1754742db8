package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHandler_FramesAndCleanup(t *testing.T) {
	registry := NewRegistry(4)
	handler := NewSSEHandler(registry, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Serve(rec, req, "u1")
		close(done)
	}()

	// Wait until the sink is registered, then publish and let a heartbeat
	// fire before disconnecting.
	deadline := time.Now().Add(time.Second)
	for registry.SinkCount("u1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sink never registered")
		}
		time.Sleep(time.Millisecond)
	}
	registry.Publish("u1", "notification", map[string]string{"message": "hi"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return on disconnect")
	}

	if registry.SinkCount("u1") != 0 {
		t.Errorf("sinks = %d, want 0 after disconnect", registry.SinkCount("u1"))
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, frame := range []string{"event: connected", "event: heartbeat", "event: notification"} {
		if !strings.Contains(body, frame) {
			t.Errorf("body missing %q:\n%s", frame, body)
		}
	}
	if !strings.Contains(body, `"message":"hi"`) {
		t.Errorf("body missing published payload:\n%s", body)
	}
}

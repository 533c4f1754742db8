package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SSEHandler writes a user's fan-out events to a Server-Sent Events
// connection. Each connection gets a `connected` frame on open and a
// `heartbeat` frame at a fixed interval to keep intermediaries from
// closing the idle stream.
type SSEHandler struct {
	registry  *Registry
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewSSEHandler creates an SSE handler.
func NewSSEHandler(registry *Registry, heartbeat time.Duration, logger *zap.Logger) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHandler{registry: registry, heartbeat: heartbeat, logger: logger}
}

// Serve streams events for the user until the client disconnects. The
// subscription and the heartbeat ticker are torn down synchronously when
// the request context is done.
func (h *SSEHandler) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server's write deadline.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub, unsubscribe := h.registry.Subscribe(userID)
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	writeFrame(w, "connected", map[string]string{"user_id": userID})
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeFrame(w, "heartbeat", map[string]int64{"ts": time.Now().Unix()})
			flusher.Flush()
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			writeFrame(w, e.Type, e.Payload)
			flusher.Flush()
		}
	}
}

// writeFrame emits one SSE frame: `event: <type>\ndata: <json>\n\n`.
func writeFrame(w http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}

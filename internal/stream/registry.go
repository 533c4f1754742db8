// Package stream implements the per-user notification fan-out: live SSE
// sinks, the subscriber registry, and persistent notifications.
package stream

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relayops/relay/internal/observability"
)

// Event is a single fan-out message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Subscriber is one live sink for a user. Events arrive on a buffered
// channel; a slow consumer loses events rather than blocking publishers.
type Subscriber struct {
	userID string
	ch     chan Event
}

// Events returns the subscriber's event channel.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Registry tracks live sinks per user and fans events out to them.
// Publishing to a user without sinks is a no-op.
type Registry struct {
	mu      sync.RWMutex
	sinks   map[string]map[*Subscriber]struct{}
	buffer  int
	metrics *observability.Metrics
	logger  *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics attaches fan-out metrics.
func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a fan-out registry. buffer sets the per-sink channel
// capacity.
func NewRegistry(buffer int, opts ...RegistryOption) *Registry {
	if buffer < 1 {
		buffer = 16
	}
	r := &Registry{
		sinks:  make(map[string]map[*Subscriber]struct{}),
		buffer: buffer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a new sink for the user. The returned function
// removes the sink and closes its channel; it is safe to call once.
func (r *Registry) Subscribe(userID string) (*Subscriber, func()) {
	sub := &Subscriber{userID: userID, ch: make(chan Event, r.buffer)}

	r.mu.Lock()
	if r.sinks[userID] == nil {
		r.sinks[userID] = make(map[*Subscriber]struct{})
	}
	r.sinks[userID][sub] = struct{}{}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.StreamSubscribers.Inc()
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			if subs, ok := r.sinks[userID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(r.sinks, userID)
				}
			}
			r.mu.Unlock()
			close(sub.ch)
			if r.metrics != nil {
				r.metrics.StreamSubscribers.Dec()
			}
		})
	}
	return sub, unsubscribe
}

// Publish delivers the event to every live sink of the user. Delivery is
// best-effort: sinks with a full buffer are skipped.
func (r *Registry) Publish(userID, eventType string, payload any) {
	e := Event{Type: eventType, Payload: payload}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for sub := range r.sinks[userID] {
		select {
		case sub.ch <- e:
		default:
			r.logger.Warn("stream sink buffer full, event dropped",
				zap.String("user_id", userID),
				zap.String("event_type", eventType),
			)
		}
	}
}

// SinkCount returns the number of live sinks for the user. For testing.
func (r *Registry) SinkCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks[userID])
}

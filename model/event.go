package model

import "time"

// EventName identifies the kind of a worker-reported event.
type EventName string

// The closed set of worker-reported event names.
const (
	EventProgressTracker     EventName = "progress_tracker"
	EventVerificationCode    EventName = "verification_code"
	EventVerificationOptions EventName = "verification_options"
	EventConfirmationDialog  EventName = "confirmation_dialog"
	EventNotice              EventName = "notice"
)

// Valid reports whether n is a known event name.
func (n EventName) Valid() bool {
	switch n {
	case EventProgressTracker, EventVerificationCode,
		EventVerificationOptions, EventConfirmationDialog, EventNotice:
		return true
	}
	return false
}

// Interactive reports whether the event is a form the client must answer
// (verification code/options, confirmation dialog). Interactive events may
// carry a timeout; non-interactive events never do.
func (n EventName) Interactive() bool {
	switch n {
	case EventVerificationCode, EventVerificationOptions, EventConfirmationDialog:
		return true
	}
	return false
}

// ProcessEvent is an ingested worker-reported event. Events are immutable
// once written; expiry of time-limited forms is recomputed at every read,
// never eagerly applied.
type ProcessEvent struct {
	ID          string         `json:"id"`
	ProcessID   string         `json:"process_id"`
	Name        EventName      `json:"event_name"`
	Status      string         `json:"status"`
	Stage       string         `json:"process_stage"`
	ThreadStage string         `json:"thread_stage,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
	Payload     map[string]any `json:"data,omitempty"`
	// TimeoutSeconds limits how long an interactive form stays answerable.
	// Zero means the form is unlimited.
	TimeoutSeconds int       `json:"timeout,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Remaining returns the seconds left before the form expires at the given
// instant. Unlimited forms (TimeoutSeconds == 0) return -1. A result of zero
// or below for a limited form means the form has expired.
func (e ProcessEvent) Remaining(now time.Time) int {
	if e.TimeoutSeconds <= 0 {
		return -1
	}
	deadline := e.CreatedAt.Add(time.Duration(e.TimeoutSeconds) * time.Second)
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	// Round up so a client countdown never shows 0 while still valid.
	return int((remaining + time.Second - 1) / time.Second)
}

// ActiveForm is an interactive event paired with its recomputed remaining
// seconds, as returned to clients rendering a live countdown.
type ActiveForm struct {
	Event     ProcessEvent `json:"event"`
	Remaining int          `json:"remaining"`
}

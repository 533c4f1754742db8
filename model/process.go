// Package model holds the shared domain types for the relay coordination
// service: processes, tokens, events, notifications, and the error envelope.
package model

import "time"

// ProcessStatus is the lifecycle state of a process.
type ProcessStatus string

// Process lifecycle states.
const (
	StatusPending      ProcessStatus = "pending"
	StatusProcessing   ProcessStatus = "processing"
	StatusOnHold       ProcessStatus = "on_hold"
	StatusCompleted    ProcessStatus = "completed"
	StatusSemCompleted ProcessStatus = "sem_completed"
	StatusSuccess      ProcessStatus = "success"
	StatusFailed       ProcessStatus = "failed"
)

// Statuses returns every known process status.
func Statuses() []ProcessStatus {
	return []ProcessStatus{
		StatusPending, StatusProcessing, StatusOnHold, StatusCompleted,
		StatusSemCompleted, StatusSuccess, StatusFailed,
	}
}

// Valid reports whether s is a known process status.
func (s ProcessStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusOnHold, StatusCompleted,
		StatusSemCompleted, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state. Terminal processes accept
// no further transitions; failed processes may additionally be deleted.
func (s ProcessStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSuccess || s == StatusFailed
}

// Settling reports whether s carries an end time: the run has stopped even
// when, as with sem_completed, a final confirmation is still outstanding.
func (s ProcessStatus) Settling() bool {
	return s.Terminal() || s == StatusSemCompleted
}

// legalTransitions is the closed set of allowed status transitions. The
// on_hold → pending edge carries an extra guard: no other process may be
// pending at the time of the transition. sem_completed is a stopped run
// awaiting an explicit success confirmation.
var legalTransitions = map[ProcessStatus]map[ProcessStatus]bool{
	StatusPending: {
		StatusOnHold:     true,
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusOnHold: {
		StatusPending: true,
		StatusFailed:  true,
	},
	StatusProcessing: {
		StatusCompleted:    true,
		StatusSemCompleted: true,
		StatusFailed:       true,
	},
	StatusSemCompleted: {
		StatusSuccess: true,
		StatusFailed:  true,
	},
}

// CanTransition reports whether the edge from → to exists in the transition
// table. It does not evaluate the singleton-pending guard; that requires
// store access and lives in the process service.
func CanTransition(from, to ProcessStatus) bool {
	return legalTransitions[from][to]
}

// Process identifies one run of the externally-executed automation job.
type Process struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Status    ProcessStatus `json:"status"`
	Progress  int           `json:"progress"`
	Stage     string        `json:"stage"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Active reports whether the process is in a non-terminal state.
func (p Process) Active() bool {
	return !p.Status.Terminal()
}

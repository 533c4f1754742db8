// Package command dispatches named automation commands to the worker:
// rate limiting, signed invocation, failure classification, and the
// background runner for fire-and-forget kinds.
package command

import (
	"fmt"

	"github.com/relayops/relay/model"
)

// Kind identifies an automation command. The set is closed; unknown names
// are rejected at parse time.
type Kind string

// The closed set of dispatchable commands.
const (
	KindTerminate      Kind = "terminate"
	KindRestart        Kind = "restart"
	KindRematch        Kind = "rematch"
	KindRematchUser    Kind = "rematch_user"
	KindRematchPlayer  Kind = "rematch_player"
	KindRefilter       Kind = "refilter"
	KindRefilterPlayer Kind = "refilter_player"
	KindMarkSuccess    Kind = "mark_success"
	KindNotifyAll      Kind = "notify_all"
)

// ParseKind maps a route parameter to a command kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindTerminate, KindRestart, KindRematch, KindRematchUser,
		KindRematchPlayer, KindRefilter, KindRefilterPlayer,
		KindMarkSuccess, KindNotifyAll:
		return k, nil
	}
	return "", model.NewBadRequestError(fmt.Sprintf("unknown command %q", s))
}

// RateLimited reports whether the kind passes through the minimum-interval
// gate. Terminate and mark-success trigger worker actions that must not
// run twice off a double-click.
func (k Kind) RateLimited() bool {
	return k == KindTerminate || k == KindMarkSuccess
}

// Async reports whether the kind is fire-and-forget: the caller gets an
// immediate acknowledgment and the worker call runs in the background.
func (k Kind) Async() bool {
	switch k {
	case KindRestart, KindRematch, KindRematchUser, KindRematchPlayer,
		KindRefilter, KindRefilterPlayer, KindNotifyAll:
		return true
	}
	return false
}

// successStatus returns the process status applied after the worker
// accepts the command, or empty when the command leaves the state machine
// alone.
func (k Kind) successStatus() model.ProcessStatus {
	switch k {
	case KindTerminate:
		return model.StatusFailed
	case KindMarkSuccess:
		return model.StatusSuccess
	}
	return ""
}

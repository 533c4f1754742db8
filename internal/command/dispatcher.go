package command

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/internal/worker"
	"github.com/relayops/relay/model"
)

// Caller sends a signed request to the automation worker. Implemented by
// worker.Client.
type Caller interface {
	Send(ctx context.Context, method, path, token string, payload any) (worker.Response, error)
}

// TokenIssuer mints a per-process token carried on the outbound call so
// the worker can report back. Implemented by auth.Authority.
type TokenIssuer interface {
	Issue(ctx context.Context, userID, processID string) (model.ProcessToken, error)
}

// Notifier records a notification and pushes it to the user's live sinks.
type Notifier interface {
	Notify(ctx context.Context, userID, processID, message string, ntype model.NotificationType) (model.Notification, error)
}

// workerCommand is the signed payload posted to the worker.
type workerCommand struct {
	Command   string         `json:"command"`
	ProcessID string         `json:"process_id"`
	UserID    string         `json:"user_id"`
	Role      string         `json:"role"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Dispatcher routes named commands to the worker. Sensitive kinds pass a
// minimum-interval gate; fire-and-forget kinds run on the background
// runner with their errors delivered as notifications, never log-only.
type Dispatcher struct {
	procs   *process.Service
	caller  Caller
	tokens  TokenIssuer
	notif   Notifier
	limiter RateLimiter
	runner  *Runner
	metrics *observability.Metrics
	logger  *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics attaches dispatch metrics.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(procs *process.Service, caller Caller, tokens TokenIssuer, notif Notifier,
	limiter RateLimiter, runner *Runner, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		procs:   procs,
		caller:  caller,
		tokens:  tokens,
		notif:   notif,
		limiter: limiter,
		runner:  runner,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one command for the actor. Synchronous kinds return the
// process after the worker call; fire-and-forget kinds return immediately
// with the resolved process while the call runs in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, actor model.Actor, kind Kind, payload map[string]any) (model.Process, error) {
	if kind.RateLimited() && !d.limiter.TryAcquire(ctx, string(kind)) {
		if d.metrics != nil {
			d.metrics.RecordRateLimited(string(kind))
		}
		return model.Process{}, model.NewRateLimitedError(int(d.limiter.Interval().Seconds()))
	}

	p, err := d.procs.Active(ctx, actor)
	if err != nil {
		return model.Process{}, err
	}

	if !kind.Async() {
		return d.execute(ctx, actor, kind, p, payload)
	}

	err = d.runner.Submit(func(taskCtx context.Context) {
		callCtx, cancel := context.WithTimeout(taskCtx, 30*time.Second)
		defer cancel()
		if _, err := d.execute(callCtx, actor, kind, p, payload); err != nil {
			// execute has already notified the user; the log is secondary.
			d.logger.Warn("async command failed",
				zap.String("kind", string(kind)),
				zap.String("process_id", p.ID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return model.Process{}, err
	}
	return p, nil
}

// execute performs the worker call and applies the outcome. At most one
// attempt is made; a failed call is never retried automatically.
func (d *Dispatcher) execute(ctx context.Context, actor model.Actor, kind Kind, p model.Process, payload map[string]any) (model.Process, error) {
	ctx, span := observability.StartSpan(ctx, "command."+string(kind),
		observability.AttrCommandKind.String(string(kind)),
		observability.AttrProcessID.String(p.ID),
		observability.AttrUserID.String(p.UserID))
	p, err := d.call(ctx, actor, kind, p, payload)
	observability.EndSpanWithError(span, err)
	return p, err
}

// call issues the signed worker request and classifies the reply.
func (d *Dispatcher) call(ctx context.Context, actor model.Actor, kind Kind, p model.Process, payload map[string]any) (model.Process, error) {
	start := time.Now()

	token, err := d.tokens.Issue(ctx, p.UserID, p.ID)
	if err != nil {
		return model.Process{}, err
	}

	resp, err := d.caller.Send(ctx, http.MethodPost, "/automation/commands", token.Token, workerCommand{
		Command:   string(kind),
		ProcessID: p.ID,
		UserID:    p.UserID,
		Role:      string(actor.Role),
		Payload:   payload,
	})
	if err != nil {
		d.recordOutcome(kind, "error", start)
		d.hardFailure(ctx, kind, p, err.Error())
		return model.Process{}, err
	}

	if !resp.OK() {
		message := resp.Message()
		if isSoftFailure(resp) {
			d.recordOutcome(kind, "conflict", start)
			d.notify(ctx, p, fmt.Sprintf("%s not applied: %s", kind, message), model.NotifyWarning)
			return model.Process{}, model.NewConflictError(message)
		}
		d.recordOutcome(kind, "rejected", start)
		d.hardFailure(ctx, kind, p, message)
		return model.Process{}, &model.ErrorEnvelope{
			Code:    model.ErrInternalError,
			Message: fmt.Sprintf("worker rejected %s: %s", kind, message),
		}
	}

	if target := kind.successStatus(); target != "" {
		updated, err := d.procs.ApplyWorkerStatus(ctx, p, target)
		if err != nil {
			return model.Process{}, err
		}
		p = updated
	}

	d.recordOutcome(kind, "ok", start)
	d.notify(ctx, p, fmt.Sprintf("%s accepted", kind), model.NotifySuccess)
	return p, nil
}

// hardFailure reverts the process to a safe fallback and tells the user.
// The revert and the notification are best-effort; the original failure is
// what the caller sees.
func (d *Dispatcher) hardFailure(ctx context.Context, kind Kind, p model.Process, message string) {
	if err := d.procs.Revert(ctx, p.ID, model.StatusPending); err != nil {
		d.logger.Error("revert after failed command",
			zap.String("process_id", p.ID),
			zap.Error(err),
		)
	}
	d.notify(ctx, p, fmt.Sprintf("%s failed: %s", kind, message), model.NotifyError)
}

func (d *Dispatcher) notify(ctx context.Context, p model.Process, message string, ntype model.NotificationType) {
	if d.notif == nil {
		return
	}
	if _, err := d.notif.Notify(ctx, p.UserID, p.ID, message, ntype); err != nil {
		d.logger.Error("command notification failed",
			zap.String("process_id", p.ID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) recordOutcome(kind Kind, status string, start time.Time) {
	if d.metrics != nil {
		d.metrics.RecordCommand(string(kind), status, time.Since(start))
	}
}

// isSoftFailure classifies worker refusals that mean "the run is busy,
// try later": the state is left alone and the user is only notified.
func isSoftFailure(resp worker.Response) bool {
	if resp.StatusCode == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(resp.Message()), "already processing")
}

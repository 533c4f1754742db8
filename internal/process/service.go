package process

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/model"
)

// ProgressUpdate is a worker-reported progress record. Both fields are
// optional; absent fields leave the process untouched.
type ProgressUpdate struct {
	Progress *int    `json:"progress,omitempty"`
	Status   *string `json:"status,omitempty"`
	Stage    string  `json:"stage,omitempty"`
}

// Service enforces the process state machine. A rejected transition never
// mutates the record; guards are evaluated before any write.
type Service struct {
	store    Store
	cascades []Cascade
	metrics  *observability.Metrics
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the service clock. For testing.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithCascades registers stores whose rows are removed together with a
// deleted process.
func WithCascades(cascades ...Cascade) ServiceOption {
	return func(s *Service) { s.cascades = append(s.cascades, cascades...) }
}

// WithMetrics attaches transition metrics.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a process service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a new pending process owned by the actor. The global
// singleton-pending invariant applies at creation just as it does on the
// on_hold → pending transition.
func (s *Service) Start(ctx context.Context, actor model.Actor, stage string) (model.Process, error) {
	if err := s.ensureNoPending(ctx, ""); err != nil {
		return model.Process{}, err
	}

	now := s.now().UTC()
	p := model.Process{
		ID:        uuid.New().String(),
		UserID:    actor.ID,
		Status:    model.StatusPending,
		Stage:     stage,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return model.Process{}, err
	}
	return p, nil
}

// Get returns a process the actor may see.
func (s *Service) Get(ctx context.Context, actor model.Actor, id string) (model.Process, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Process{}, err
	}
	if !actor.CanAct(p.UserID) {
		return model.Process{}, model.NewForbiddenError("process belongs to another user")
	}
	return p, nil
}

// Active resolves the process a command acts on: the actor's own active
// process, or for admins the most recently active process system-wide.
func (s *Service) Active(ctx context.Context, actor model.Actor) (model.Process, error) {
	if actor.IsAdmin() {
		return s.store.MostRecentActive(ctx)
	}
	return s.store.ActiveForUser(ctx, actor.ID)
}

// Transition applies a client- or admin-requested status change, enforcing
// the transition table and the singleton-pending guard.
func (s *Service) Transition(ctx context.Context, actor model.Actor, id string, target model.ProcessStatus) (model.Process, error) {
	if !target.Valid() {
		return model.Process{}, model.NewBadRequestError(fmt.Sprintf("unknown status %q", target))
	}

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Process{}, err
	}
	if !actor.CanAct(p.UserID) {
		return model.Process{}, model.NewForbiddenError("process belongs to another user")
	}

	if !model.CanTransition(p.Status, target) {
		s.recordTransition(p.Status, target, "rejected")
		return model.Process{}, model.NewStateError(p.Status, target)
	}
	if target == model.StatusPending {
		if err := s.ensureNoPending(ctx, p.ID); err != nil {
			s.recordTransition(p.Status, target, "rejected")
			return model.Process{}, err
		}
	}

	return s.apply(ctx, p, target)
}

// ApplyWorkerStatus applies a worker-reported status. Workers may complete
// or fail a processing run and may terminate pending/on_hold/processing
// runs with failed.
func (s *Service) ApplyWorkerStatus(ctx context.Context, p model.Process, target model.ProcessStatus) (model.Process, error) {
	if !target.Valid() {
		return model.Process{}, model.NewBadRequestError(fmt.Sprintf("unknown status %q", target))
	}

	allowed := model.CanTransition(p.Status, target)
	if !allowed && target == model.StatusFailed {
		// Worker-triggered termination of any non-terminal run.
		allowed = !p.Status.Terminal()
	}
	if !allowed {
		s.recordTransition(p.Status, target, "rejected")
		return model.Process{}, model.NewStateError(p.Status, target)
	}

	return s.apply(ctx, p, target)
}

// Progress records a worker progress report: optional progress percentage
// (clamped to 0-100), optional stage label, optional status change.
func (s *Service) Progress(ctx context.Context, processID string, update ProgressUpdate) (model.Process, error) {
	p, err := s.store.Get(ctx, processID)
	if err != nil {
		return model.Process{}, err
	}

	if update.Status != nil {
		target := model.ProcessStatus(*update.Status)
		p, err = s.ApplyWorkerStatus(ctx, p, target)
		if err != nil {
			return model.Process{}, err
		}
	}

	changed := false
	if update.Progress != nil {
		progress := *update.Progress
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		p.Progress = progress
		changed = true
	}
	if update.Stage != "" {
		p.Stage = update.Stage
		changed = true
	}

	if changed {
		p.UpdatedAt = s.now().UTC()
		if err := s.store.Update(ctx, p); err != nil {
			return model.Process{}, err
		}
	}
	return p, nil
}

// Revert moves a process back to a safe fallback state after a hard command
// failure, without transition-table checks. Terminal processes are left
// untouched.
func (s *Service) Revert(ctx context.Context, processID string, fallback model.ProcessStatus) error {
	p, err := s.store.Get(ctx, processID)
	if err != nil {
		return err
	}
	if p.Status.Terminal() || p.Status == fallback {
		return nil
	}
	p.Status = fallback
	p.UpdatedAt = s.now().UTC()
	return s.store.Update(ctx, p)
}

// Delete removes a process in the terminal failed state along with its
// tokens, events, and notifications. Irreversible.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanAct(p.UserID) {
		return model.NewForbiddenError("process belongs to another user")
	}
	if p.Status != model.StatusFailed {
		return model.NewStateError(p.Status, model.StatusFailed)
	}

	for _, c := range s.cascades {
		if err := c.DeleteByProcess(ctx, id); err != nil {
			return err
		}
	}
	return s.store.Delete(ctx, id)
}

// apply stamps timestamps for the target state and persists.
func (s *Service) apply(ctx context.Context, p model.Process, target model.ProcessStatus) (model.Process, error) {
	from := p.Status
	now := s.now().UTC()
	p.Status = target
	p.UpdatedAt = now
	if target.Settling() {
		end := now
		p.EndTime = &end
	}
	if err := s.store.Update(ctx, p); err != nil {
		return model.Process{}, err
	}
	s.recordTransition(from, target, "ok")
	return p, nil
}

func (s *Service) recordTransition(from, to model.ProcessStatus, status string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(from), string(to), status)
	}
}

// ensureNoPending enforces the global singleton-pending invariant. The
// process identified by exceptID is ignored so a pending process can be
// re-checked against itself.
func (s *Service) ensureNoPending(ctx context.Context, exceptID string) error {
	pending, err := s.store.FindByStatus(ctx, model.StatusPending)
	if err != nil {
		return err
	}
	for _, other := range pending {
		if other.ID != exceptID {
			return &model.ErrorEnvelope{
				Code:    model.ErrState,
				Message: fmt.Sprintf("process %q is already pending", other.ID),
			}
		}
	}
	return nil
}

package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/model"
)

// Publisher pushes an event to a user's live stream sinks. Publishing is
// best-effort; a user without sinks loses nothing but the live push.
type Publisher interface {
	Publish(userID, eventType string, payload any)
}

// Notifier records a persistent notification and fans it out. processID
// links the notification to the run it concerns; it may be empty.
type Notifier interface {
	Notify(ctx context.Context, userID, processID, message string, ntype model.NotificationType) (model.Notification, error)
}

// IngestRequest is a worker-submitted event.
type IngestRequest struct {
	Name        string         `json:"event_name"`
	Status      string         `json:"status"`
	Stage       string         `json:"process_stage"`
	ThreadStage string         `json:"thread_stage"`
	ThreadID    string         `json:"thread_id"`
	Payload     map[string]any `json:"data"`
	// TimeoutSeconds applies to interactive forms only; zero is unlimited.
	TimeoutSeconds int `json:"timeout"`
}

// Ingestor validates, persists, and fans out worker-reported events.
type Ingestor struct {
	store     Store
	processes *process.Service
	publisher Publisher
	notifier  Notifier
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithClock overrides the ingestor clock. For testing.
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

// WithMetrics attaches ingestion metrics.
func WithMetrics(m *observability.Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor creates an event ingestor.
func NewIngestor(store Store, processes *process.Service, publisher Publisher, notifier Notifier, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		store:     store,
		processes: processes,
		publisher: publisher,
		notifier:  notifier,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Dispatch ingests one worker event for the process identified by the
// verified request identity. The event is persisted first; the live push
// and the notice notification are secondary effects.
func (i *Ingestor) Dispatch(ctx context.Context, identity auth.Identity, in IngestRequest) (model.ProcessEvent, error) {
	name := model.EventName(in.Name)
	if !name.Valid() {
		return model.ProcessEvent{}, model.NewBadRequestError(fmt.Sprintf("unknown event name %q", in.Name))
	}

	timeout := in.TimeoutSeconds
	if !name.Interactive() {
		timeout = 0
	}

	e := model.ProcessEvent{
		ID:             uuid.New().String(),
		ProcessID:      identity.ProcessID,
		Name:           name,
		Status:         in.Status,
		Stage:          in.Stage,
		ThreadStage:    in.ThreadStage,
		ThreadID:       in.ThreadID,
		Payload:        in.Payload,
		TimeoutSeconds: timeout,
		CreatedAt:      i.now().UTC(),
	}
	if err := i.store.Append(ctx, e); err != nil {
		return model.ProcessEvent{}, err
	}
	if i.metrics != nil {
		i.metrics.RecordEventIngested(string(name))
	}

	i.fanOut(ctx, identity.UserID, e)
	return e, nil
}

// fanOut pushes the event to the owner's live sinks and, for notices,
// records a persistent notification.
func (i *Ingestor) fanOut(ctx context.Context, userID string, e model.ProcessEvent) {
	if i.publisher != nil {
		i.publisher.Publish(userID, streamType(e.Name), e)
	}

	if e.Name != model.EventNotice || i.notifier == nil {
		return
	}
	message, _ := e.Payload["message"].(string)
	if message == "" {
		message = e.Status
	}
	ntype := model.NotifyInfo
	if t, ok := e.Payload["type"].(string); ok && model.NotificationType(t).Valid() {
		ntype = model.NotificationType(t)
	}
	if _, err := i.notifier.Notify(ctx, userID, e.ProcessID, message, ntype); err != nil {
		i.logger.Warn("notice notification failed",
			zap.String("process_id", e.ProcessID),
			zap.Error(err),
		)
	}
}

// ActiveForms returns the process's interactive forms that are still
// answerable. Expiry is recomputed from the stored timeout at read time;
// expired forms are filtered out, never deleted.
func (i *Ingestor) ActiveForms(ctx context.Context, actor model.Actor, processID string) ([]model.ActiveForm, error) {
	if _, err := i.processes.Get(ctx, actor, processID); err != nil {
		return nil, err
	}

	events, err := i.store.ListByProcess(ctx, processID)
	if err != nil {
		return nil, err
	}

	now := i.now()
	forms := make([]model.ActiveForm, 0)
	for _, e := range events {
		if !e.Name.Interactive() {
			continue
		}
		remaining := e.Remaining(now)
		if remaining == 0 {
			continue
		}
		forms = append(forms, model.ActiveForm{Event: e, Remaining: remaining})
	}
	return forms, nil
}

// streamType maps an event name to the SSE event type clients subscribe to.
func streamType(name model.EventName) string {
	switch name {
	case model.EventProgressTracker:
		return "progress"
	case model.EventVerificationCode, model.EventVerificationOptions, model.EventConfirmationDialog:
		return "forms"
	case model.EventNotice:
		return "notification"
	default:
		return string(name)
	}
}

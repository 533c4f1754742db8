package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/internal/worker"
	"github.com/relayops/relay/model"
)

type fakeCaller struct {
	mu       sync.Mutex
	resp     worker.Response
	err      error
	requests []workerCommand
	tokens   []string
}

func (c *fakeCaller) Send(_ context.Context, _, _, token string, payload any) (worker.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, payload.(workerCommand))
	c.tokens = append(c.tokens, token)
	return c.resp, c.err
}

func (c *fakeCaller) calls() []workerCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]workerCommand(nil), c.requests...)
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(_ context.Context, userID, processID string) (model.ProcessToken, error) {
	return model.ProcessToken{Token: "tok-" + processID, UserID: userID, ProcessID: processID}, nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []model.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, userID, processID, message string, ntype model.NotificationType) (model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	notification := model.Notification{UserID: userID, ProcessID: processID, Message: message, Type: ntype}
	n.notifications = append(n.notifications, notification)
	return notification, nil
}

func (n *fakeNotifier) all() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Notification(nil), n.notifications...)
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	store      *process.MemoryStore
	caller     *fakeCaller
	notifier   *fakeNotifier
	runner     *Runner
}

func newDispatchFixture(t *testing.T, status model.ProcessStatus) *dispatchFixture {
	t.Helper()
	store := process.NewMemoryStore()
	err := store.Create(context.Background(), model.Process{
		ID:        "p1",
		UserID:    "u1",
		Status:    status,
		StartTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed process: %v", err)
	}

	caller := &fakeCaller{resp: worker.Response{StatusCode: 200}}
	notifier := &fakeNotifier{}
	runner := NewRunner(1, 8)
	runner.Start(context.Background())
	t.Cleanup(runner.Shutdown)

	d := NewDispatcher(
		process.NewService(store),
		caller,
		fakeIssuer{},
		notifier,
		NewMemoryRateLimiter(10*time.Second),
		runner,
	)
	return &dispatchFixture{d, store, caller, notifier, runner}
}

var actor = model.Actor{ID: "u1", Role: model.RoleUser}

func (f *dispatchFixture) waitForNotifications(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(f.notifier.all()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("notifications = %d, want %d", len(f.notifier.all()), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcher_TerminateSuccess(t *testing.T) {
	f := newDispatchFixture(t, model.StatusProcessing)

	p, err := f.dispatcher.Dispatch(context.Background(), actor, KindTerminate, nil)
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if p.Status != model.StatusFailed {
		t.Errorf("status = %q, want failed after terminate", p.Status)
	}

	if len(f.caller.calls()) != 1 {
		t.Fatalf("worker calls = %d, want 1", len(f.caller.calls()))
	}
	req := f.caller.calls()[0]
	if req.Command != "terminate" || req.ProcessID != "p1" || req.UserID != "u1" {
		t.Errorf("request = %+v", req)
	}
	if f.caller.tokens[0] != "tok-p1" {
		t.Errorf("token = %q", f.caller.tokens[0])
	}

	if len(f.notifier.all()) != 1 || f.notifier.all()[0].Type != model.NotifySuccess {
		t.Errorf("notifications = %+v", f.notifier.all())
	}
}

func TestDispatcher_RateLimitedSecondCall(t *testing.T) {
	f := newDispatchFixture(t, model.StatusProcessing)

	if _, err := f.dispatcher.Dispatch(context.Background(), actor, KindTerminate, nil); err != nil {
		t.Fatalf("first Dispatch error: %v", err)
	}

	// The process is failed now; reset it so only the limiter can refuse.
	p, _ := f.store.Get(context.Background(), "p1")
	p.Status = model.StatusProcessing
	f.store.Update(context.Background(), p)

	_, err := f.dispatcher.Dispatch(context.Background(), actor, KindTerminate, nil)
	ee := &model.ErrorEnvelope{}
	if !errors.As(err, &ee) || ee.Code != model.ErrRateLimited {
		t.Fatalf("error = %v, want RATE_LIMITED", err)
	}
	if len(f.caller.calls()) != 1 {
		t.Errorf("worker calls = %d, want 1 (second gated)", len(f.caller.calls()))
	}
}

func TestDispatcher_SoftFailureLeavesStateAlone(t *testing.T) {
	f := newDispatchFixture(t, model.StatusProcessing)
	f.caller.resp = worker.Response{
		StatusCode: 409,
		Body:       map[string]any{"message": "already processing"},
	}

	_, err := f.dispatcher.Dispatch(context.Background(), actor, KindTerminate, nil)
	ee := &model.ErrorEnvelope{}
	if !errors.As(err, &ee) || ee.Code != model.ErrConflict {
		t.Fatalf("error = %v, want CONFLICT", err)
	}

	p, _ := f.store.Get(context.Background(), "p1")
	if p.Status != model.StatusProcessing {
		t.Errorf("status = %q, soft failure must not change state", p.Status)
	}
	if len(f.notifier.all()) != 1 || f.notifier.all()[0].Type != model.NotifyWarning {
		t.Errorf("notifications = %+v", f.notifier.all())
	}
}

func TestDispatcher_HardFailureReverts(t *testing.T) {
	f := newDispatchFixture(t, model.StatusProcessing)
	f.caller.err = model.NewWorkerUnavailableError()

	_, err := f.dispatcher.Dispatch(context.Background(), actor, KindTerminate, nil)
	ee := &model.ErrorEnvelope{}
	if !errors.As(err, &ee) || ee.Code != model.ErrWorkerUnavailable {
		t.Fatalf("error = %v, want WORKER_UNAVAILABLE", err)
	}

	p, _ := f.store.Get(context.Background(), "p1")
	if p.Status != model.StatusPending {
		t.Errorf("status = %q, want pending after revert", p.Status)
	}
	if len(f.notifier.all()) != 1 || f.notifier.all()[0].Type != model.NotifyError {
		t.Errorf("notifications = %+v", f.notifier.all())
	}
	if len(f.caller.calls()) != 1 {
		t.Errorf("worker calls = %d, want exactly 1 (no retry)", len(f.caller.calls()))
	}
}

func TestDispatcher_AsyncKindReturnsImmediately(t *testing.T) {
	f := newDispatchFixture(t, model.StatusProcessing)

	p, err := f.dispatcher.Dispatch(context.Background(), actor, KindRestart, map[string]any{"reason": "stuck"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if p.ID != "p1" {
		t.Errorf("resolved process = %q", p.ID)
	}

	f.waitForNotifications(t, 1)
	if f.notifier.all()[0].Type != model.NotifySuccess {
		t.Errorf("notification = %+v", f.notifier.all()[0])
	}
	if f.caller.calls()[0].Command != "restart" {
		t.Errorf("command = %q", f.caller.calls()[0].Command)
	}
}

func TestDispatcher_AsyncErrorReachesUser(t *testing.T) {
	f := newDispatchFixture(t, model.StatusProcessing)
	f.caller.err = model.NewWorkerTimeoutError()

	if _, err := f.dispatcher.Dispatch(context.Background(), actor, KindRematch, nil); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	f.waitForNotifications(t, 1)
	n := f.notifier.all()[0]
	if n.Type != model.NotifyError || n.UserID != "u1" {
		t.Errorf("notification = %+v", n)
	}

	p, _ := f.store.Get(context.Background(), "p1")
	if p.Status != model.StatusPending {
		t.Errorf("status = %q, want pending after async revert", p.Status)
	}
}

func TestDispatcher_MarkSuccess(t *testing.T) {
	f := newDispatchFixture(t, model.StatusSemCompleted)

	p, err := f.dispatcher.Dispatch(context.Background(), actor, KindMarkSuccess, nil)
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if p.Status != model.StatusSuccess {
		t.Errorf("status = %q, want success", p.Status)
	}
	if p.EndTime == nil {
		t.Error("EndTime not set on success")
	}
}

func TestDispatcher_NoActiveProcess(t *testing.T) {
	f := newDispatchFixture(t, model.StatusCompleted)

	_, err := f.dispatcher.Dispatch(context.Background(), actor, KindRestart, nil)
	ee := &model.ErrorEnvelope{}
	if !errors.As(err, &ee) || ee.Code != model.ErrNotFound {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
	if len(f.caller.calls()) != 0 {
		t.Errorf("worker calls = %d, want 0", len(f.caller.calls()))
	}
}

package event

import (
	"context"
	"testing"
	"time"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/model"
)

type fakePublisher struct {
	userIDs []string
	types   []string
}

func (p *fakePublisher) Publish(userID, eventType string, _ any) {
	p.userIDs = append(p.userIDs, userID)
	p.types = append(p.types, eventType)
}

type fakeNotifier struct {
	notifications []model.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, userID, processID, message string, ntype model.NotificationType) (model.Notification, error) {
	notification := model.Notification{UserID: userID, ProcessID: processID, Message: message, Type: ntype}
	n.notifications = append(n.notifications, notification)
	return notification, nil
}

type fixture struct {
	ingestor  *Ingestor
	store     *MemoryStore
	publisher *fakePublisher
	notifier  *fakeNotifier
	clock     *time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	procStore := process.NewMemoryStore()
	err := procStore.Create(context.Background(), model.Process{
		ID:        "p1",
		UserID:    "u1",
		Status:    model.StatusProcessing,
		StartTime: now,
	})
	if err != nil {
		t.Fatalf("seed process: %v", err)
	}

	store := NewMemoryStore()
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	ingestor := NewIngestor(store, process.NewService(procStore), publisher, notifier,
		WithClock(func() time.Time { return *clock }))
	return fixture{ingestor, store, publisher, notifier, clock}
}

var workerIdentity = auth.Identity{UserID: "u1", ProcessID: "p1", Token: "tok"}

func TestIngestor_Dispatch(t *testing.T) {
	f := newFixture(t)

	e, err := f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{
		Name:           "verification_code",
		Status:         "awaiting code",
		Stage:          "login",
		TimeoutSeconds: 30,
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if e.ProcessID != "p1" || e.Name != model.EventVerificationCode {
		t.Errorf("event = %+v", e)
	}
	if f.store.Len() != 1 {
		t.Errorf("stored events = %d, want 1", f.store.Len())
	}
	if len(f.publisher.types) != 1 || f.publisher.types[0] != "forms" {
		t.Errorf("published types = %v, want [forms]", f.publisher.types)
	}
	if f.publisher.userIDs[0] != "u1" {
		t.Errorf("published to %q, want u1", f.publisher.userIDs[0])
	}
}

func TestIngestor_Dispatch_UnknownName(t *testing.T) {
	f := newFixture(t)

	_, err := f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{Name: "telemetry"})
	if err == nil {
		t.Fatal("expected rejection of unknown event name")
	}
	if f.store.Len() != 0 {
		t.Errorf("stored events = %d, want 0", f.store.Len())
	}
}

func TestIngestor_Dispatch_NoticeCreatesNotification(t *testing.T) {
	f := newFixture(t)

	_, err := f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{
		Name:    "notice",
		Payload: map[string]any{"message": "run paused", "type": "warning"},
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(f.notifier.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.notifications))
	}
	n := f.notifier.notifications[0]
	if n.UserID != "u1" || n.Message != "run paused" || n.Type != model.NotifyWarning {
		t.Errorf("notification = %+v", n)
	}
}

func TestIngestor_Dispatch_TimeoutOnlyForForms(t *testing.T) {
	f := newFixture(t)

	e, err := f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{
		Name:           "progress_tracker",
		TimeoutSeconds: 45,
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if e.TimeoutSeconds != 0 {
		t.Errorf("timeout = %d, want 0 on non-interactive event", e.TimeoutSeconds)
	}
	if f.publisher.types[0] != "progress" {
		t.Errorf("published type = %q, want progress", f.publisher.types[0])
	}
}

func TestIngestor_ActiveForms_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	actor := model.Actor{ID: "u1", Role: model.RoleUser}

	_, err := f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{
		Name:           "verification_code",
		TimeoutSeconds: 30,
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	_, err = f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{
		Name: "confirmation_dialog",
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	_, err = f.ingestor.Dispatch(context.Background(), workerIdentity, IngestRequest{Name: "notice"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	// 29s in, the timed form has one second left.
	*f.clock = f.clock.Add(29 * time.Second)
	forms, err := f.ingestor.ActiveForms(context.Background(), actor, "p1")
	if err != nil {
		t.Fatalf("ActiveForms error: %v", err)
	}
	if len(forms) != 2 {
		t.Fatalf("forms = %d, want 2", len(forms))
	}
	if forms[0].Remaining != 1 {
		t.Errorf("timed form remaining = %d, want 1", forms[0].Remaining)
	}
	if forms[1].Remaining != -1 {
		t.Errorf("unlimited form remaining = %d, want -1", forms[1].Remaining)
	}

	// 31s in, the timed form has expired and is filtered; the record stays.
	*f.clock = f.clock.Add(2 * time.Second)
	forms, err = f.ingestor.ActiveForms(context.Background(), actor, "p1")
	if err != nil {
		t.Fatalf("ActiveForms error: %v", err)
	}
	if len(forms) != 1 {
		t.Fatalf("forms = %d, want 1 after expiry", len(forms))
	}
	if forms[0].Event.Name != model.EventConfirmationDialog {
		t.Errorf("surviving form = %q", forms[0].Event.Name)
	}
	if f.store.Len() != 3 {
		t.Errorf("stored events = %d, want 3 (expiry never deletes)", f.store.Len())
	}
}

func TestIngestor_ActiveForms_Ownership(t *testing.T) {
	f := newFixture(t)

	_, err := f.ingestor.ActiveForms(context.Background(), model.Actor{ID: "u2", Role: model.RoleUser}, "p1")
	if err == nil {
		t.Fatal("expected forbidden for non-owner")
	}
	if _, err := f.ingestor.ActiveForms(context.Background(), model.Actor{ID: "a1", Role: model.RoleAdmin}, "p1"); err != nil {
		t.Fatalf("admin ActiveForms error: %v", err)
	}
}

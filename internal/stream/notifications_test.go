package stream

import (
	"context"
	"testing"

	"github.com/relayops/relay/model"
)

func newNotificationFixture(t *testing.T) (*NotificationService, *MemoryNotificationStore, *Registry) {
	t.Helper()
	store := NewMemoryNotificationStore()
	registry := NewRegistry(4)
	return NewNotificationService(store, registry), store, registry
}

func TestNotificationService_NotifyPersistsAndPublishes(t *testing.T) {
	svc, store, registry := newNotificationFixture(t)
	sub, unsub := registry.Subscribe("u1")
	defer unsub()

	n, err := svc.Notify(context.Background(), "u1", "p1", "run complete", model.NotifySuccess)
	if err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if n.ID == "" || n.ProcessID != "p1" {
		t.Errorf("notification = %+v", n)
	}
	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1", store.Len())
	}

	select {
	case e := <-sub.Events():
		if e.Type != "notification" {
			t.Errorf("event type = %q", e.Type)
		}
		published, ok := e.Payload.(model.Notification)
		if !ok || published.ID != n.ID {
			t.Errorf("payload = %+v", e.Payload)
		}
	default:
		t.Error("notification not published to live sink")
	}
}

func TestNotificationService_NotifyWithoutSinksStillPersists(t *testing.T) {
	svc, store, _ := newNotificationFixture(t)

	if _, err := svc.Notify(context.Background(), "u1", "", "quiet", model.NotifyInfo); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1", store.Len())
	}
}

func TestNotificationService_MarkReadOwnership(t *testing.T) {
	svc, store, _ := newNotificationFixture(t)
	n, _ := svc.Notify(context.Background(), "u1", "", "msg", model.NotifyInfo)

	if err := svc.MarkRead(context.Background(), model.Actor{ID: "u2", Role: model.RoleUser}, n.ID); err == nil {
		t.Error("expected forbidden for non-owner")
	}
	if err := svc.MarkRead(context.Background(), model.Actor{ID: "u1", Role: model.RoleUser}, n.ID); err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}

	got, _ := store.Get(context.Background(), n.ID)
	if !got.Read {
		t.Error("notification not marked read")
	}
}

func TestNotificationService_Delete(t *testing.T) {
	svc, store, _ := newNotificationFixture(t)
	n, _ := svc.Notify(context.Background(), "u1", "", "msg", model.NotifyInfo)

	if err := svc.Delete(context.Background(), model.Actor{ID: "u2", Role: model.RoleUser}, n.ID); err == nil {
		t.Error("expected forbidden for non-owner")
	}
	// Admins may delete other users' notifications.
	if err := svc.Delete(context.Background(), model.Actor{ID: "a1", Role: model.RoleAdmin}, n.ID); err != nil {
		t.Fatalf("admin Delete error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("stored = %d, want 0", store.Len())
	}
}

func TestNotificationService_DeleteByProcess(t *testing.T) {
	svc, store, _ := newNotificationFixture(t)
	svc.Notify(context.Background(), "u1", "p1", "one", model.NotifyInfo)
	svc.Notify(context.Background(), "u1", "p1", "two", model.NotifyInfo)
	svc.Notify(context.Background(), "u1", "", "standalone", model.NotifyInfo)

	if err := svc.DeleteByProcess(context.Background(), "p1"); err != nil {
		t.Fatalf("DeleteByProcess error: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("stored = %d, want 1 standalone survivor", store.Len())
	}
}

func TestNotificationService_UnknownTypeFallsBackToInfo(t *testing.T) {
	svc, _, _ := newNotificationFixture(t)

	n, err := svc.Notify(context.Background(), "u1", "", "msg", model.NotificationType("loud"))
	if err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if n.Type != model.NotifyInfo {
		t.Errorf("type = %q, want info", n.Type)
	}
}

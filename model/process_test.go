package model

import (
	"testing"
	"time"
)

func TestProcessStatus_Valid(t *testing.T) {
	valid := []ProcessStatus{
		StatusPending, StatusProcessing, StatusOnHold,
		StatusCompleted, StatusSemCompleted, StatusSuccess, StatusFailed,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	if ProcessStatus("running").Valid() {
		t.Error("Valid(running) = true, want false")
	}
}

func TestProcessStatus_Terminal(t *testing.T) {
	if !StatusCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !StatusFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if !StatusSuccess.Terminal() {
		t.Error("success should be terminal")
	}
	for _, s := range []ProcessStatus{StatusPending, StatusProcessing, StatusOnHold, StatusSemCompleted} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
	if !StatusSemCompleted.Settling() {
		t.Error("sem_completed should be settling")
	}
	if StatusProcessing.Settling() {
		t.Error("processing should not be settling")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ProcessStatus
		want     bool
	}{
		{StatusOnHold, StatusPending, true},
		{StatusPending, StatusOnHold, true},
		{StatusOnHold, StatusFailed, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusSemCompleted, true},
		{StatusSemCompleted, StatusSuccess, true},
		{StatusSemCompleted, StatusFailed, true},
		{StatusCompleted, StatusSuccess, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusPending, false},
		{StatusOnHold, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestProcessEvent_Remaining(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	form := ProcessEvent{
		Name:           EventVerificationCode,
		TimeoutSeconds: 30,
		CreatedAt:      created,
	}

	if got := form.Remaining(created.Add(29 * time.Second)); got != 1 {
		t.Errorf("Remaining at T+29s = %d, want 1", got)
	}
	if got := form.Remaining(created.Add(31 * time.Second)); got != 0 {
		t.Errorf("Remaining at T+31s = %d, want 0", got)
	}

	unlimited := ProcessEvent{Name: EventConfirmationDialog, CreatedAt: created}
	if got := unlimited.Remaining(created.Add(240 * time.Hour)); got != -1 {
		t.Errorf("Remaining for unlimited form = %d, want -1", got)
	}
}

func TestActor_CanAct(t *testing.T) {
	owner := Actor{ID: "u1", Role: RoleUser}
	other := Actor{ID: "u2", Role: RoleUser}
	admin := Actor{ID: "a1", Role: RoleAdmin}

	if !owner.CanAct("u1") {
		t.Error("owner should act on own resource")
	}
	if other.CanAct("u1") {
		t.Error("non-owner user should not act on another's resource")
	}
	if !admin.CanAct("u1") {
		t.Error("admin should act on any resource")
	}
}

package process

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/relayops/relay/model"
)

// Both stores must agree on what "active" means: the SQL predicate used by
// PgStore has to exclude exactly the statuses MemoryStore's Terminal check
// excludes, for every known status.
func TestActiveFilter_AgreesWithMemoryStore(t *testing.T) {
	for _, status := range model.Statuses() {
		excluded := strings.Contains(activeFilter, "'"+string(status)+"'")
		if excluded != status.Terminal() {
			t.Errorf("SQL active filter excludes %q = %v, Terminal() = %v",
				status, excluded, status.Terminal())
		}

		store := NewMemoryStore()
		p := model.Process{
			ID:        "p-" + string(status),
			UserID:    "u1",
			Status:    status,
			StartTime: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		}
		if err := store.Create(context.Background(), p); err != nil {
			t.Fatalf("Create(%q): %v", status, err)
		}

		_, err := store.ActiveForUser(context.Background(), "u1")
		if active := err == nil; active == status.Terminal() {
			t.Errorf("MemoryStore treats %q as active = %v, want %v",
				status, active, !status.Terminal())
		}
	}
}

// success is terminal: a succeeded run must not shadow a newer one when
// resolving the active process.
func TestActiveFilter_SuccessIsTerminal(t *testing.T) {
	if !strings.Contains(activeFilter, "'success'") {
		t.Fatalf("active filter %q does not exclude success", activeFilter)
	}

	store := NewMemoryStore()
	succeeded := model.Process{
		ID:        "p1",
		UserID:    "u1",
		Status:    model.StatusSuccess,
		StartTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Create(context.Background(), succeeded); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.ActiveForUser(context.Background(), "u1"); err == nil {
		t.Error("succeeded process reported as active")
	}
	if _, err := store.MostRecentActive(context.Background()); err == nil {
		t.Error("succeeded process reported as most recent active")
	}
}

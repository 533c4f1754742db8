package command

import "testing"

func TestParseKind(t *testing.T) {
	known := []string{
		"terminate", "restart", "rematch", "rematch_user", "rematch_player",
		"refilter", "refilter_player", "mark_success", "notify_all",
	}
	for _, name := range known {
		k, err := ParseKind(name)
		if err != nil {
			t.Errorf("ParseKind(%q) error: %v", name, err)
		}
		if string(k) != name {
			t.Errorf("ParseKind(%q) = %q", name, k)
		}
	}

	for _, name := range []string{"", "shutdown", "TERMINATE", "rematch-user"} {
		if _, err := ParseKind(name); err == nil {
			t.Errorf("ParseKind(%q) accepted an unknown command", name)
		}
	}
}

func TestKind_Classification(t *testing.T) {
	if !KindTerminate.RateLimited() || !KindMarkSuccess.RateLimited() {
		t.Error("terminate and mark_success must be rate limited")
	}
	if KindRestart.RateLimited() {
		t.Error("restart must not be rate limited")
	}

	for _, k := range []Kind{KindRestart, KindRematch, KindRematchUser, KindRematchPlayer, KindRefilter, KindRefilterPlayer, KindNotifyAll} {
		if !k.Async() {
			t.Errorf("%q should be fire-and-forget", k)
		}
	}
	for _, k := range []Kind{KindTerminate, KindMarkSuccess} {
		if k.Async() {
			t.Errorf("%q should be synchronous", k)
		}
	}
}

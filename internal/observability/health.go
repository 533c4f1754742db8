package observability

import (
	"encoding/json"
	"net/http"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Healthy() bool
}

// ReadinessChecks holds the readiness probes evaluated by the /ready handler.
type ReadinessChecks struct {
	// Store is the persistence layer, when one is configured.
	Store HealthChecker
}

// HandleHealth returns the liveness handler. It reports process liveness
// only and never touches dependencies.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
			"commit":  Commit,
		})
	}
}

// HandleReady returns the readiness handler.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if checks.Store != nil && !checks.Store.Healthy() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{
				"status": "store unavailable",
			})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

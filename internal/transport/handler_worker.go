package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/event"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/model"
)

// handleWorkerProgress records a worker progress report for the process
// bound to the verified token.
func (h *Handlers) handleWorkerProgress(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFrom(r.Context())

	var update process.ProgressUpdate
	if err := json.Unmarshal(RawBodyFrom(r.Context()), &update); err != nil {
		WriteError(w, model.NewBadRequestError("malformed JSON body"))
		return
	}

	p, err := h.Processes.Progress(r.Context(), identity.ProcessID, update)
	if err != nil {
		WriteError(w, err)
		return
	}

	// A worker-reported failure reaches the owner immediately.
	if update.Status != nil && model.ProcessStatus(*update.Status) == model.StatusFailed {
		h.notifyOwner(r, identity.UserID, p.ID, "automation run failed", model.NotifyError)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"process": p})
}

// handleWorkerEvent ingests one worker-reported event.
func (h *Handlers) handleWorkerEvent(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFrom(r.Context())

	var in event.IngestRequest
	if err := json.Unmarshal(RawBodyFrom(r.Context()), &in); err != nil {
		WriteError(w, model.NewBadRequestError("malformed JSON body"))
		return
	}

	e, err := h.Ingestor.Dispatch(r.Context(), identity, in)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"event": e})
}

// handleWorkerComplete finishes the run: the reported final status is
// applied and the token is consumed so it cannot authenticate again.
func (h *Handlers) handleWorkerComplete(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFrom(r.Context())

	var body struct {
		Status string `json:"status"`
	}
	if raw := RawBodyFrom(r.Context()); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			WriteError(w, model.NewBadRequestError("malformed JSON body"))
			return
		}
	}
	if body.Status == "" {
		body.Status = string(model.StatusCompleted)
	}

	switch model.ProcessStatus(body.Status) {
	case model.StatusCompleted, model.StatusSemCompleted, model.StatusFailed:
	default:
		WriteError(w, model.NewBadRequestError("status must be one of completed, sem_completed, failed"))
		return
	}

	p, err := h.Processes.Progress(r.Context(), identity.ProcessID, process.ProgressUpdate{Status: &body.Status})
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.Authority.Complete(r.Context(), identity.Token); err != nil {
		WriteError(w, err)
		return
	}

	message := "automation run " + body.Status
	ntype := model.NotifySuccess
	if model.ProcessStatus(body.Status) == model.StatusFailed {
		ntype = model.NotifyError
	}
	h.notifyOwner(r, identity.UserID, p.ID, message, ntype)

	WriteJSON(w, http.StatusOK, map[string]any{"process": p})
}

// handleAPIKeyRefresh rotates a capability-scoped worker key: a new key
// is issued and the presented key, if it is a stored one, is revoked.
func (h *Handlers) handleAPIKeyRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
		TTLSeconds  int      `json:"ttl_seconds"`
	}
	if err := json.Unmarshal(RawBodyFrom(r.Context()), &body); err != nil {
		WriteError(w, model.NewBadRequestError("malformed JSON body"))
		return
	}
	if body.Name == "" || len(body.Permissions) == 0 {
		WriteError(w, model.NewBadRequestError("name and permissions are required"))
		return
	}

	key, err := h.Authority.IssueAPIKey(r.Context(), body.Name,
		body.Permissions, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		WriteError(w, err)
		return
	}

	// Rotating with a stored key retires it; the shared key is not stored
	// and is left alone.
	presented := r.Header.Get(auth.HeaderAPIKey)
	if err := h.Authority.RevokeAPIKey(r.Context(), presented); err != nil {
		ee, ok := err.(*model.ErrorEnvelope)
		if !ok || ee.Code != model.ErrNotFound {
			h.logWarn(r, "retiring presented api key failed", err)
		}
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"api_key": key})
}

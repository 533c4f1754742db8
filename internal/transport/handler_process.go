package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relayops/relay/model"
)

// clientTargets is the restricted set of statuses a client may request
// directly. Everything else moves through worker reports or commands.
var clientTargets = map[model.ProcessStatus]bool{
	model.StatusPending: true,
	model.StatusOnHold:  true,
	model.StatusFailed:  true,
}

// handleProcessStart creates a new pending process for the actor.
func (h *Handlers) handleProcessStart(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	var body struct {
		Stage string `json:"stage"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("malformed JSON body"))
			return
		}
	}

	p, err := h.Processes.Start(r.Context(), actor, body.Stage)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"process": p})
}

// handleProcessStatus applies a client-requested status change from the
// restricted target set.
func (h *Handlers) handleProcessStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, model.NewBadRequestError("malformed JSON body"))
		return
	}

	target := model.ProcessStatus(body.Status)
	if !clientTargets[target] {
		WriteError(w, model.NewBadRequestError("status must be one of pending, on_hold, failed"))
		return
	}

	p, err := h.Processes.Transition(r.Context(), actor, chi.URLParam(r, "id"), target)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"process": p})
}

// handleProcessActive returns the actor's active process, or for admins
// the most recently active process system-wide.
func (h *Handlers) handleProcessActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	p, err := h.Processes.Active(r.Context(), actor)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"process": p})
}

// handleProcessDelete removes a failed process and its dependent rows.
func (h *Handlers) handleProcessDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	if err := h.Processes.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProcessForms returns the still-answerable interactive forms with
// freshly recomputed remaining seconds.
func (h *Handlers) handleProcessForms(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	forms, err := h.Ingestor.ActiveForms(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"forms": forms})
}

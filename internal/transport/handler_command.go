package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relayops/relay/internal/command"
	"github.com/relayops/relay/model"
)

// handleCommand dispatches a named command for the authenticated actor.
// Fire-and-forget kinds are acknowledged with 202 while the worker call
// runs in the background.
func (h *Handlers) handleCommand(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	kind, err := command.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		WriteError(w, err)
		return
	}

	var payload map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteError(w, model.NewBadRequestError("malformed JSON body"))
			return
		}
	}

	p, err := h.Dispatcher.Dispatch(r.Context(), actor, kind, payload)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusOK
	if kind.Async() {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, map[string]any{"process": p})
}

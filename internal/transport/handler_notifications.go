package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relayops/relay/model"
)

// handleNotificationList returns the actor's notifications, newest first.
func (h *Handlers) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	notifications, err := h.Notifications.List(r.Context(), actor)
	if err != nil {
		WriteError(w, err)
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// handleNotificationRead flags a notification as read.
func (h *Handlers) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	if err := h.Notifications.MarkRead(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNotificationDelete removes a notification.
func (h *Handlers) handleNotificationDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}

	if err := h.Notifications.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades the request to a Server-Sent Events stream bound
// to the actor's fan-out sinks.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	actor, ok := model.ActorFrom(r.Context())
	if !ok {
		WriteError(w, model.NewAuthError("not authenticated"))
		return
	}
	h.SSE.Serve(w, r, actor.ID)
}

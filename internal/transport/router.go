// Package transport wires the HTTP surface: the chi router, the client and
// worker middleware chains, and the JSON error envelope.
package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/internal/command"
	"github.com/relayops/relay/internal/event"
	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/internal/process"
	"github.com/relayops/relay/internal/stream"
	"github.com/relayops/relay/model"
)

// Handlers holds the services behind the HTTP surface.
type Handlers struct {
	Processes     *process.Service
	Dispatcher    *command.Dispatcher
	Ingestor      *event.Ingestor
	Notifications *stream.NotificationService
	Authority     *auth.Authority
	SSE           *stream.SSEHandler
	Logger        *zap.Logger

	// Authenticate guards the client routes. Production wiring installs
	// JWTAuthenticator; tests may install a stub.
	Authenticate func(http.Handler) http.Handler

	Metrics *observability.Metrics
	Checks  observability.ReadinessChecks
}

// NewRouter builds the chi router. Health, readiness, and metrics bypass
// authentication; client routes sit behind the JWT middleware and worker
// routes behind the signed-request middleware.
func (h *Handlers) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(h.Logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(h.Checks))
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	authenticate := h.Authenticate
	if authenticate == nil {
		authenticate = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(RequestLogging(h.Logger))
		r.Use(Metrics(h.Metrics))

		r.Post("/process", h.handleProcessStart)
		r.Get("/process/active", h.handleProcessActive)
		r.Post("/process/{id}/status", h.handleProcessStatus)
		r.Get("/process/{id}/forms", h.handleProcessForms)
		r.Delete("/process/{id}", h.handleProcessDelete)

		r.Post("/commands/{kind}", h.handleCommand)

		r.Get("/notifications", h.handleNotificationList)
		r.Post("/notifications/{id}/read", h.handleNotificationRead)
		r.Delete("/notifications/{id}", h.handleNotificationDelete)

		r.Get("/stream", h.handleStream)
	})

	r.Route("/worker", func(r chi.Router) {
		r.Use(RequestLogging(h.Logger))
		r.Use(Metrics(h.Metrics))

		r.Group(func(r chi.Router) {
			r.Use(WorkerAuth(h.Authority))

			r.Patch("/process/progress", h.handleWorkerProgress)
			r.Post("/process/complete", h.handleWorkerComplete)
			r.Post("/events", h.handleWorkerEvent)
		})

		r.Group(func(r chi.Router) {
			r.Use(WorkerKeyAuth(h.Authority, model.PermissionRefreshAPIKey))

			r.Post("/apikey/refresh", h.handleAPIKeyRefresh)
		})
	})

	return r
}

// notifyOwner delivers a best-effort notification; delivery problems are
// logged and never fail the request that triggered them.
func (h *Handlers) notifyOwner(r *http.Request, userID, processID, message string, ntype model.NotificationType) {
	if h.Notifications == nil {
		return
	}
	if _, err := h.Notifications.Notify(r.Context(), userID, processID, message, ntype); err != nil {
		h.logWarn(r, "notification delivery failed", err)
	}
}

func (h *Handlers) logWarn(r *http.Request, msg string, err error) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn(msg,
		zap.String("correlation_id", CorrelationIDFrom(r.Context())),
		zap.Error(err),
	)
}

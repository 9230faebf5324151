package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the router wires into handlers. Audit, Breaker
// and Checks are optional; leave them nil when the backing store is not
// configured.
type Deps struct {
	Webhook *WebhookHandler
	Audit   AuditReader
	Breaker BreakerReader
	Scope   string
	Hub     LiveFeed
	Checks  map[string]Pinger
}

// LiveFeed is the websocket hub as the router sees it.
type LiveFeed interface {
	ClientCounter
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	provisionHandler := NewProvisionHandler(d.Audit)
	dashHandler := NewDashboardHandler(d.Audit, d.Breaker, d.Hub, d.Scope)

	r.Post("/webhooks/user-created", d.Webhook.UserCreated)

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Checks))

		r.Route("/provisions", func(r chi.Router) {
			r.Get("/", provisionHandler.List)
			r.Get("/{id}", provisionHandler.Get)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/backend-health", dashHandler.BackendHealth)
	})

	return r
}

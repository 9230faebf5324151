package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthHandler reports liveness. A failing dependency marks the service
// degraded but still answers 200.
func HealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
		}

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			resp.Checks = make(map[string]string, len(checks))
			for name, p := range checks {
				if err := p.Ping(ctx); err != nil {
					resp.Checks[name] = "unavailable"
					resp.Status = "degraded"
					continue
				}
				resp.Checks[name] = "ok"
			}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

package api

import (
	"context"
	"net/http"
	"time"
)

/* =========================
   HEALTH CHECK ENDPOINT
========================= */

type HealthResponse struct {
	Success  bool   `json:"success"`
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// HandleHealthCheck handles GET /api/health. The server is degraded, not
// down, when a store fails: the round loop keeps running.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Success:  true,
		Status:   "ok",
		Postgres: checkHealth(ctx, h.Postgres),
		Redis:    checkHealth(ctx, h.Redis),
	}
	if !healthy(resp.Postgres) || !healthy(resp.Redis) {
		resp.Status = "degraded"
	}

	sendJSON(w, http.StatusOK, resp)
}

func checkHealth(ctx context.Context, c HealthChecker) string {
	if c == nil {
		return "disabled"
	}
	if err := c.HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func healthy(status string) bool {
	return status == "ok" || status == "disabled"
}

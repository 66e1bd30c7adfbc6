package api

import (
	"context"
	"encoding/json"
	"net/http"

	"bierbaron/crash"
	"bierbaron/db"
	"bierbaron/metrics"
	"bierbaron/protocol"
)

// RoundSource is the live round as the HTTP API sees it.
type RoundSource interface {
	Snapshot() protocol.GameState
	CurrentRound() crash.RoundInfo
}

type LeaderboardSource interface {
	GetBalanceLeaderboard(ctx context.Context, limit int) ([]*db.BalanceLeaderboardEntry, error)
	GetBigWinLeaderboard(ctx context.Context, limit int) ([]*db.BigWinLeaderboardEntry, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handlers holds the dependencies of the HTTP endpoints. Leaderboard and the
// health checkers may be nil when the backing store is not configured.
type Handlers struct {
	Round         RoundSource
	Leaderboard   LeaderboardSource
	Postgres      HealthChecker
	Redis         HealthChecker
	AllowedOrigin string
}

// Register mounts every endpoint on mux.
func (h *Handlers) Register(mux *http.ServeMux, m *metrics.Metrics) {
	mux.HandleFunc("/api/health", h.cors(h.HandleHealthCheck))
	mux.HandleFunc("/api/crash/state", h.cors(h.HandleCrashState))
	mux.HandleFunc("/api/crash/verify", h.cors(h.HandleVerifyRound))
	mux.HandleFunc("/api/leaderboard/balance", h.cors(h.HandleBalanceLeaderboard))
	mux.HandleFunc("/api/leaderboard/bigwin", h.cors(h.HandleBigWinLeaderboard))
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
}

// cors adds CORS headers to allow frontend requests
func (h *Handlers) cors(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := h.AllowedOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if origin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

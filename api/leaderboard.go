package api

import (
	"log"
	"net/http"

	"bierbaron/config"
)

// HandleBalanceLeaderboard handles GET /api/leaderboard/balance: the top
// wallets by balance, in the same shape the frontend already consumes.
func (h *Handlers) HandleBalanceLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.Leaderboard == nil {
		sendError(w, http.StatusServiceUnavailable, "Leaderboard unavailable")
		return
	}

	entries, err := h.Leaderboard.GetBalanceLeaderboard(r.Context(), config.LeaderboardLimit)
	if err != nil {
		log.Printf("❌ Failed to get balance leaderboard: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to fetch balance leaderboard")
		return
	}

	sendJSON(w, http.StatusOK, entries)
}

// HandleBigWinLeaderboard handles GET /api/leaderboard/bigwin
func (h *Handlers) HandleBigWinLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.Leaderboard == nil {
		sendError(w, http.StatusServiceUnavailable, "Leaderboard unavailable")
		return
	}

	entries, err := h.Leaderboard.GetBigWinLeaderboard(r.Context(), config.LeaderboardLimit)
	if err != nil {
		log.Printf("❌ Failed to get big win leaderboard: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to fetch big win leaderboard")
		return
	}

	sendJSON(w, http.StatusOK, entries)
}

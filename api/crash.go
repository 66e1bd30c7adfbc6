package api

import (
	"encoding/json"
	"log"
	"net/http"

	"bierbaron/crash"
	"bierbaron/crypto"
	"bierbaron/game"
	"bierbaron/protocol"
)

/* =========================
   REQUEST/RESPONSE TYPES
========================= */

type CrashStateResponse struct {
	protocol.GameState
	Round crash.RoundInfo `json:"round"`
}

type VerifyRequest struct {
	ServerSeed string `json:"serverSeed"`
	SeedHash   string `json:"seedHash"`
	RoundID    string `json:"roundId"`
}

type VerifyResponse struct {
	Valid      bool    `json:"valid"`
	CrashPoint float64 `json:"crashPoint,omitempty"`
	Error      string  `json:"error,omitempty"`
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandleCrashState handles GET /api/crash/state
func (h *Handlers) HandleCrashState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sendJSON(w, http.StatusOK, CrashStateResponse{
		GameState: h.Round.Snapshot(),
		Round:     h.Round.CurrentRound(),
	})
}

// HandleVerifyRound handles POST /api/crash/verify. It checks the revealed
// seed against the published hash and recomputes the round's crash point.
func (h *Handlers) HandleVerifyRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSON(w, http.StatusMethodNotAllowed, VerifyResponse{Error: "Method not allowed. Use POST."})
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, VerifyResponse{Error: "Invalid request body"})
		return
	}

	if req.ServerSeed == "" || req.SeedHash == "" || req.RoundID == "" {
		sendJSON(w, http.StatusBadRequest, VerifyResponse{Error: "Missing required fields: serverSeed, seedHash, roundId"})
		return
	}

	if !crypto.VerifySeed(req.ServerSeed, req.SeedHash) {
		sendJSON(w, http.StatusOK, VerifyResponse{Error: "Server seed hash does not match"})
		return
	}

	crashPoint := game.CrashPointForSeed(req.ServerSeed, req.RoundID)
	log.Printf("✅ Round verified - RoundID: %s, Crash point: %.2fx", req.RoundID, crashPoint)

	sendJSON(w, http.StatusOK, VerifyResponse{Valid: true, CrashPoint: crashPoint})
}

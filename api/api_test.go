package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bierbaron/crash"
	"bierbaron/crypto"
	"bierbaron/db"
	"bierbaron/game"
	"bierbaron/metrics"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(any)      {}
func (nopBroadcaster) SendTo(string, any) {}

type fakeLeaderboard struct {
	entries []*db.BalanceLeaderboardEntry
	bigWins []*db.BigWinLeaderboardEntry
	err     error
	limit   int
}

func (f *fakeLeaderboard) GetBalanceLeaderboard(ctx context.Context, limit int) ([]*db.BalanceLeaderboardEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

func (f *fakeLeaderboard) GetBigWinLeaderboard(ctx context.Context, limit int) ([]*db.BigWinLeaderboardEntry, error) {
	f.limit = limit
	return f.bigWins, f.err
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newMux(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux, metrics.New())
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		postgres HealthChecker
		redis    HealthChecker
		status   string
	}{
		{"all ok", fakeHealth{}, fakeHealth{}, "ok"},
		{"stores disabled", nil, nil, "ok"},
		{"redis down", fakeHealth{}, fakeHealth{err: errors.New("refused")}, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(&Handlers{Postgres: tt.postgres, Redis: tt.redis})
			rec := do(t, mux, http.MethodGet, "/api/health", "")

			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if rec.Code != http.StatusOK || resp.Status != tt.status {
				t.Fatalf("got %d %+v, want status %s", rec.Code, resp, tt.status)
			}
		})
	}
}

func TestCrashStateHidesCrashPoint(t *testing.T) {
	engine := crash.NewEngine(crash.NewMemoryLedger(), nopBroadcaster{}, crash.WithDrawer(func(string) (crash.Draw, error) {
		return crash.Draw{CrashPoint: 4.2, ServerSeed: "secret-seed", SeedHash: "public-hash"}, nil
	}))
	if err := engine.StartBetting(); err != nil {
		t.Fatal(err)
	}

	mux := newMux(&Handlers{Round: engine})
	rec := do(t, mux, http.MethodGet, "/api/crash/state", "")
	body := rec.Body.String()

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	for _, want := range []string{`"type":"gameState"`, `"phase":"betting"`, `"seedHash":"public-hash"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}
	for _, secret := range []string{"secret-seed", "4.2"} {
		if strings.Contains(body, secret) {
			t.Errorf("body %s leaks %s", body, secret)
		}
	}
}

func TestVerifyRound(t *testing.T) {
	mux := newMux(&Handlers{})
	seed, hash, err := crypto.GenerateServerSeed()
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, mux, http.MethodPost, "/api/crash/verify",
		`{"serverSeed":"`+seed+`","seedHash":"`+hash+`","roundId":"r-1"}`)
	var resp VerifyResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Valid || resp.CrashPoint != game.CrashPointForSeed(seed, "r-1") {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = do(t, mux, http.MethodPost, "/api/crash/verify",
		`{"serverSeed":"`+seed+`","seedHash":"deadbeef","roundId":"r-1"}`)
	resp = VerifyResponse{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Valid || resp.Error == "" {
		t.Fatalf("Expected hash mismatch, got %+v", resp)
	}

	if rec := do(t, mux, http.MethodPost, "/api/crash/verify", `{"serverSeed":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing fields, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/crash/verify", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", rec.Code)
	}
}

func TestBalanceLeaderboard(t *testing.T) {
	lb := &fakeLeaderboard{entries: []*db.BalanceLeaderboardEntry{
		{UserID: 1, DiscordName: "Anna", Balance: 500},
		{UserID: 2, DiscordName: "Bernd", Balance: 100},
	}}
	mux := newMux(&Handlers{Leaderboard: lb})

	rec := do(t, mux, http.MethodGet, "/api/leaderboard/balance", "")
	var entries []db.BalanceLeaderboardEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(entries) != 2 || entries[0].DiscordName != "Anna" || lb.limit != 20 {
		t.Fatalf("unexpected leaderboard %+v (limit %d)", entries, lb.limit)
	}

	lb.err = errors.New("timeout")
	if rec := do(t, mux, http.MethodGet, "/api/leaderboard/balance", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}

	if rec := do(t, newMux(&Handlers{}), http.MethodGet, "/api/leaderboard/balance", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without a store, got %d", rec.Code)
	}
}

func TestBigWinLeaderboard(t *testing.T) {
	lb := &fakeLeaderboard{bigWins: []*db.BigWinLeaderboardEntry{
		{UserID: 2, DiscordName: "Bernd", BiggestWin: 1800},
		{UserID: 1, DiscordName: "Anna", BiggestWin: 180},
	}}
	mux := newMux(&Handlers{Leaderboard: lb})

	rec := do(t, mux, http.MethodGet, "/api/leaderboard/bigwin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var entries []db.BigWinLeaderboardEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(entries) != 2 || entries[0].BiggestWin != 1800 || lb.limit != 20 {
		t.Fatalf("unexpected leaderboard %+v (limit %d)", entries, lb.limit)
	}

	lb.err = errors.New("timeout")
	if rec := do(t, mux, http.MethodGet, "/api/leaderboard/bigwin", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if rec := do(t, newMux(&Handlers{}), http.MethodGet, "/api/leaderboard/bigwin", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without a store, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	mux := newMux(&Handlers{AllowedOrigin: "https://bierbaron.example"})
	rec := do(t, mux, http.MethodOptions, "/api/crash/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://bierbaron.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newMux(&Handlers{})
	rec := do(t, mux, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bierbaron_ws_connections") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}
}

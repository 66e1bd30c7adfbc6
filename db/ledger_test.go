package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"bierbaron/crash"
	"bierbaron/state"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	_ = godotenv.Load("../.env")

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	p, err := NewPostgres(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("Failed to init postgres: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func testUser(t *testing.T, p *Postgres, discordID string, balance int64) int64 {
	t.Helper()
	ctx := context.Background()

	_, _ = p.Pool.Exec(ctx, "DELETE FROM users WHERE discord_id = $1", discordID)
	id, err := p.EnsureUser(ctx, discordID, "Test "+discordID)
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if balance > 0 {
		if err := p.Grant(ctx, id, balance, "test_grant"); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
	}
	t.Cleanup(func() {
		p.Pool.Exec(context.Background(), "DELETE FROM users WHERE id = $1", id)
	})
	return id
}

func TestPostgresLedger(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	userID := testUser(t, p, "test-ledger-1", 100)

	t.Run("LookupUser", func(t *testing.T) {
		u, err := p.LookupUser(ctx, userID)
		if err != nil {
			t.Fatalf("LookupUser failed: %v", err)
		}
		if u == nil || u.DisplayName != "Test test-ledger-1" {
			t.Fatalf("Expected test user, got %+v", u)
		}

		missing, err := p.LookupUser(ctx, -1)
		if err != nil || missing != nil {
			t.Fatalf("Expected nil for unknown user, got %+v, %v", missing, err)
		}
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		boom := errors.New("boom")
		err := p.WithTx(ctx, func(tx crash.LedgerTx) error {
			if err := tx.WriteBalance(ctx, userID, 1); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected fn error back, got %v", err)
		}

		balance, _ := p.Balance(ctx, userID)
		if balance != 100 {
			t.Errorf("Expected balance 100 after rollback, got %d", balance)
		}
	})

	t.Run("MissingWalletIsZero", func(t *testing.T) {
		err := p.WithTx(ctx, func(tx crash.LedgerTx) error {
			balance, err := tx.LockBalance(ctx, -42)
			if err != nil {
				return err
			}
			if balance != 0 {
				t.Errorf("Expected 0, got %d", balance)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithTx failed: %v", err)
		}
	})
}

// discard is a Broadcaster that drops everything.
type discard struct{}

func (discard) Broadcast(any)      {}
func (discard) SendTo(string, any) {}

func TestEngineAgainstPostgres(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	rich := testUser(t, p, "test-ledger-rich", 100)
	poor := testUser(t, p, "test-ledger-poor", 10)

	start := time.Now()
	e := crash.NewEngine(p, discard{},
		crash.WithDrawer(func(string) (crash.Draw, error) {
			return crash.Draw{CrashPoint: 3, ServerSeed: "s", SeedHash: "h"}, nil
		}),
		crash.WithClock(func() time.Time { return start }),
	)
	if err := e.StartBetting(); err != nil {
		t.Fatalf("StartBetting failed: %v", err)
	}

	if got := e.Bet(ctx, crash.Bettor{ConnID: "a", UserID: rich, DisplayName: "rich"}, 100); got != crash.Accepted {
		t.Fatalf("Bet = %v", got)
	}
	if got := e.Bet(ctx, crash.Bettor{ConnID: "b", UserID: poor, DisplayName: "poor"}, 50); got != crash.Rejected {
		t.Fatalf("Expected Rejected, got %v", got)
	}
	e.CloseBetting()
	e.StartRunning(start)
	e.Tick(start.Add(12050 * time.Millisecond))
	if got := e.Cashout(ctx, "a"); got != crash.Accepted {
		t.Fatalf("Cashout = %v", got)
	}

	if b, _ := p.Balance(ctx, rich); b != 180 {
		t.Errorf("Expected 180, got %d", b)
	}
	if b, _ := p.Balance(ctx, poor); b != 10 {
		t.Errorf("Expected 10, got %d", b)
	}

	var reasons []string
	rows, err := p.Pool.Query(ctx, "SELECT reason FROM wallet_transactions WHERE user_id = $1 ORDER BY id", rich)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for rows.Next() {
		var r string
		rows.Scan(&r)
		reasons = append(reasons, r)
	}
	rows.Close()
	want := []string{"test_grant", "crash_bet", "crash_win@1.8x"}
	if len(reasons) != len(want) {
		t.Fatalf("Expected %v, got %v", want, reasons)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("reason %d = %s, want %s", i, reasons[i], want[i])
		}
	}
}

func TestBalanceLeaderboard(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	testUser(t, p, "test-leader-1", 1000000)
	testUser(t, p, "test-leader-2", 999999)

	entries, err := p.GetBalanceLeaderboard(ctx, 20)
	if err != nil {
		t.Fatalf("GetBalanceLeaderboard failed: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("Expected at least 2 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Balance < entries[i].Balance {
			t.Fatal("Leaderboard not sorted DESC by balance")
		}
	}
}

func TestBigWinLeaderboard(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	winner := testUser(t, p, "test-bigwin-1", 0)
	for _, tx := range []struct {
		amount int64
		reason string
	}{
		{900, "crash_win@1.8x"},
		{2500, "crash_win@25x"},
		{1000000000, "test_grant"},
	} {
		if err := p.Grant(ctx, winner, tx.amount, tx.reason); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
	}

	entries, err := p.GetBigWinLeaderboard(ctx, 100)
	if err != nil {
		t.Fatalf("GetBigWinLeaderboard failed: %v", err)
	}
	var found *BigWinLeaderboardEntry
	for _, e := range entries {
		if e.UserID == winner {
			found = e
		}
	}
	if found == nil || found.BiggestWin != 2500 {
		t.Fatalf("Expected biggest crash win 2500, got %+v", found)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].BiggestWin < entries[i].BiggestWin {
			t.Fatal("Leaderboard not sorted DESC by biggest win")
		}
	}
}

func TestRoundMirror(t *testing.T) {
	_ = godotenv.Load("../.env")
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()

	m, err := NewRoundMirror(ctx, RedisOptions{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	if err != nil {
		t.Fatalf("Failed to init redis: %v", err)
	}
	defer m.Close()

	roundID := "test-round-mirror"
	cashed := 1.8
	players := []state.PlayerView{
		{UserID: 2, DiscordName: "B", Bet: 50},
		{UserID: 1, DiscordName: "A", Bet: 100, CashedOutAt: &cashed},
	}
	for _, pv := range players {
		if err := m.RecordPlayer(ctx, roundID, pv); err != nil {
			t.Fatalf("RecordPlayer failed: %v", err)
		}
	}

	got, err := m.Players(ctx, roundID)
	if err != nil {
		t.Fatalf("Players failed: %v", err)
	}
	if len(got) != 2 || got[0].UserID != 1 || got[0].CashedOutAt == nil || *got[0].CashedOutAt != 1.8 {
		t.Fatalf("unexpected mirror contents %+v", got)
	}
	if ttl := m.Client.TTL(ctx, roundKey(roundID)).Val(); ttl <= 0 {
		t.Errorf("Expected a TTL on the round key, got %v", ttl)
	}

	if err := m.ClearRound(ctx, roundID); err != nil {
		t.Fatalf("ClearRound failed: %v", err)
	}
	got, _ = m.Players(ctx, roundID)
	if len(got) != 0 {
		t.Fatalf("Expected empty round after clear, got %+v", got)
	}
}

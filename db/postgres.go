package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bierbaron/config"
	"bierbaron/crash"
)

// Postgres is the ledger store: users, wallets and the wallet transaction log.
// It implements crash.Ledger.
type Postgres struct {
	Pool *pgxpool.Pool
}

var _ crash.Ledger = (*Postgres)(nil)

// NewPostgres connects, pings and makes sure the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	log.Println("🔌 Connecting to PostgreSQL...")

	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("✅ PostgreSQL connected successfully")

	p := &Postgres{Pool: pool}
	if err := p.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) Close() {
	log.Println("🔌 Closing PostgreSQL connection...")
	p.Pool.Close()
}

// InitSchema creates the ledger tables if they don't exist.
func (p *Postgres) InitSchema(ctx context.Context) error {
	log.Println("📋 Initializing database schema...")

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		discord_id TEXT NOT NULL UNIQUE,
		discord_name TEXT NOT NULL,
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS wallets (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		balance BIGINT NOT NULL DEFAULT 0,
		last_claim_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_balance ON wallets(balance DESC);

	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount BIGINT NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user ON wallet_transactions(user_id, created_at DESC);
	`

	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger tables: %w", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

/* =========================
   LEDGER
========================= */

// LookupUser returns nil, nil for an unknown id.
func (p *Postgres) LookupUser(ctx context.Context, userID int64) (*crash.User, error) {
	var u crash.User
	err := p.Pool.QueryRow(ctx,
		`SELECT id, discord_name FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.DisplayName)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %d: %w", userID, err)
	}
	return &u, nil
}

// WithTx runs fn in a transaction, committing only when fn succeeds. fn's
// error is returned as is so callers can match sentinels.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx crash.LedgerTx) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

// LockBalance reads the balance under a row lock. A user without a wallet row
// has a balance of 0.
func (l *ledgerTx) LockBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := l.tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&balance)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock wallet %d: %w", userID, err)
	}
	return balance, nil
}

func (l *ledgerTx) WriteBalance(ctx context.Context, userID int64, balance int64) error {
	query := `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = EXCLUDED.balance
	`
	if _, err := l.tx.Exec(ctx, query, userID, balance); err != nil {
		return fmt.Errorf("failed to write wallet %d: %w", userID, err)
	}
	return nil
}

func (l *ledgerTx) AppendTransaction(ctx context.Context, userID int64, amount int64, reason string) error {
	_, err := l.tx.Exec(ctx,
		`INSERT INTO wallet_transactions (user_id, amount, reason) VALUES ($1, $2, $3)`,
		userID, amount, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction for %d: %w", userID, err)
	}
	return nil
}

/* =========================
   WALLETS
========================= */

// Balance returns the current balance, 0 when no wallet exists.
func (p *Postgres) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := p.Pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// EnsureUser upserts a user by discord id and creates an empty wallet for it
// if none exists. It returns the user's id.
func (p *Postgres) EnsureUser(ctx context.Context, discordID, discordName string) (int64, error) {
	var id int64
	err := p.Pool.QueryRow(ctx, `
		INSERT INTO users (discord_id, discord_name)
		VALUES ($1, $2)
		ON CONFLICT (discord_id) DO UPDATE
		SET discord_name = EXCLUDED.discord_name, updated_at = NOW()
		RETURNING id
	`, discordID, discordName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := p.Pool.Exec(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`, id,
	); err != nil {
		return 0, fmt.Errorf("failed to create wallet: %w", err)
	}
	return id, nil
}

// Grant credits amount to a user's wallet through the ledger, tagged reason.
func (p *Postgres) Grant(ctx context.Context, userID, amount int64, reason string) error {
	return p.WithTx(ctx, func(tx crash.LedgerTx) error {
		balance, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.WriteBalance(ctx, userID, balance+amount); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, userID, amount, reason)
	})
}

/* =========================
   LEADERBOARD
========================= */

type BalanceLeaderboardEntry struct {
	UserID      int64   `json:"user_id"`
	DiscordName string  `json:"discord_name"`
	AvatarURL   *string `json:"avatar_url"`
	Balance     int64   `json:"balance"`
}

// GetBalanceLeaderboard returns the richest wallets, highest balance first.
func (p *Postgres) GetBalanceLeaderboard(ctx context.Context, limit int) ([]*BalanceLeaderboardEntry, error) {
	query := `
		SELECT u.id, u.discord_name, u.avatar_url, w.balance
		FROM wallets w
		JOIN users u ON u.id = w.user_id
		ORDER BY w.balance DESC
		LIMIT $1
	`

	rows, err := p.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []*BalanceLeaderboardEntry{}
	for rows.Next() {
		var e BalanceLeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DiscordName, &e.AvatarURL, &e.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

type BigWinLeaderboardEntry struct {
	UserID      int64   `json:"user_id"`
	DiscordName string  `json:"discord_name"`
	AvatarURL   *string `json:"avatar_url"`
	BiggestWin  int64   `json:"biggest_win"`
}

// GetBigWinLeaderboard ranks users by their single largest crash payout.
func (p *Postgres) GetBigWinLeaderboard(ctx context.Context, limit int) ([]*BigWinLeaderboardEntry, error) {
	query := `
		SELECT u.id, u.discord_name, u.avatar_url, MAX(t.amount) AS biggest_win
		FROM wallet_transactions t
		JOIN users u ON u.id = t.user_id
		WHERE t.reason LIKE $1 || '%'
		GROUP BY u.id, u.discord_name, u.avatar_url
		HAVING MAX(t.amount) > 0
		ORDER BY biggest_win DESC
		LIMIT $2
	`

	rows, err := p.Pool.Query(ctx, query, config.ReasonCrashWinPrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query big win leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []*BigWinLeaderboardEntry{}
	for rows.Next() {
		var e BigWinLeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DiscordName, &e.AvatarURL, &e.BiggestWin); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

/* =========================
   HEALTH CHECK
========================= */

func (p *Postgres) HealthCheck(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("PostgreSQL connection pool not initialized")
	}
	return p.Pool.Ping(ctx)
}

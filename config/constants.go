package config

import "time"

/* =========================
   GAME MECHANICS - CRASH
========================= */

const (
	// Round timing
	BettingDuration = 10 * time.Second       // betting window before a round starts
	TickInterval    = 100 * time.Millisecond // multiplier recompute cadence while running
	CrashPause      = 5 * time.Second        // pause after a crash (or a skipped round)
	ShutdownGrace   = 10 * time.Second       // how long shutdown waits for a running round

	// Multiplier growth: max(1.00, MultiplierBase^elapsedSeconds), two decimals
	MultiplierBase    = 1.05
	StartMultiplier   = 1.00
	MultiplierDecimal = 2

	// Crash point floor: avoids r -> 1 degenerate draws and instant crashes
	MinCrashPoint = 1.01
)

/* =========================
   LEDGER
========================= */

const (
	// wallet_transactions.reason tags
	ReasonCrashBet       = "crash_bet"
	ReasonCrashWinPrefix = "crash_win@"
	ReasonCrashWinTmpl   = ReasonCrashWinPrefix + "%sx"

	// Timeout for a single bet/cashout ledger transaction
	LedgerTimeout = 5 * time.Second

	// Leaderboard size (original backend returns top 20)
	LeaderboardLimit = 20
)

/* =========================
   WEBSOCKET
========================= */

const (
	// Liveness sweep: connections that missed the previous ping are terminated
	PingInterval = 30 * time.Second
	WriteWait    = 10 * time.Second

	// Per-connection outbound buffer; a full buffer drops messages for that client only
	SendBufferSize = 256

	// Inbound frames larger than this are rejected by the transport
	MaxMessageSize = 4096

	// Default inbound rate limit per connection
	DefaultRateLimit = 20 // frames per second
	DefaultRateBurst = 40
)

/* =========================
   REDIS TTL CONFIGURATION
========================= */

const (
	// Live round mirror TTL
	// Key: crash:round:{roundId} -> Hash{userId: player json}
	RoundMirrorTTL = 10 * time.Minute

	RedisRoundKey = "crash:round:%s"
)

/* =========================
   POSTGRESQL CONFIGURATION
========================= */

const (
	MaxConns        = 25
	MinConns        = 5
	ConnMaxLifetime = 5 * time.Minute
)

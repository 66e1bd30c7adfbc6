package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bierbaron/config"
	"bierbaron/crash"
	"bierbaron/state"
)

/* =========================
   LIVE ROUND MIRROR
   Redis Key: crash:round:{roundId} -> Hash{userId: player json}
========================= */

// RoundMirror keeps the live round's players in Redis so other processes
// (dashboards, the API of another replica) can read them. It implements
// crash.RoundMirror.
type RoundMirror struct {
	Client *redis.Client
}

var _ crash.RoundMirror = (*RoundMirror)(nil)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRoundMirror connects to Redis and pings it.
func NewRoundMirror(ctx context.Context, opts RedisOptions) (*RoundMirror, error) {
	log.Println("🔌 Connecting to Redis...")

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("✅ Redis connected successfully - URL: %s", opts.Addr)
	return &RoundMirror{Client: client}, nil
}

func (m *RoundMirror) Close() error {
	log.Println("🔌 Closing Redis connection...")
	return m.Client.Close()
}

func roundKey(roundID string) string {
	return fmt.Sprintf(config.RedisRoundKey, roundID)
}

// RecordPlayer stores (or overwrites) a player's view in the round hash.
func (m *RoundMirror) RecordPlayer(ctx context.Context, roundID string, player state.PlayerView) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	key := roundKey(roundID)
	_, err = m.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.FormatInt(player.UserID, 10), data)
		pipe.Expire(ctx, key, config.RoundMirrorTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store player in Redis: %w", err)
	}
	return nil
}

// Players returns every mirrored player of a round, ordered by user id.
func (m *RoundMirror) Players(ctx context.Context, roundID string) ([]state.PlayerView, error) {
	result, err := m.Client.HGetAll(ctx, roundKey(roundID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get round players: %w", err)
	}

	players := make([]state.PlayerView, 0, len(result))
	for userID, data := range result {
		var p state.PlayerView
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Printf("⚠️  Failed to unmarshal mirrored player %s: %v", userID, err)
			continue
		}
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })
	return players, nil
}

// ClearRound removes a finished round.
func (m *RoundMirror) ClearRound(ctx context.Context, roundID string) error {
	if err := m.Client.Del(ctx, roundKey(roundID)).Err(); err != nil {
		return fmt.Errorf("failed to cleanup round: %w", err)
	}
	log.Printf("🧹 Cleaned up round %s from Redis", roundID)
	return nil
}

// HealthCheck performs a Redis health check
func (m *RoundMirror) HealthCheck(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return m.Client.Ping(ctx).Err()
}

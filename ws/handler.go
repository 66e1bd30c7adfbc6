package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"bierbaron/config"
	"bierbaron/crash"
	"bierbaron/metrics"
	"bierbaron/protocol"
)

// Game is the part of the round engine a connection drives.
type Game interface {
	WithSnapshot(fn func(protocol.GameState))
	Bet(ctx context.Context, b crash.Bettor, amount float64) crash.Outcome
	Cashout(ctx context.Context, connID string) crash.Outcome
	Disconnect(connID string)
}

// UserLookup resolves the userId sent in an auth frame.
type UserLookup interface {
	LookupUser(ctx context.Context, userID int64) (*crash.User, error)
}

type Options struct {
	// AllowedOrigin restricts browser origins; empty or "*" allows any.
	AllowedOrigin string
	RateLimit     float64
	RateBurst     int
	Metrics       *metrics.Metrics
}

// Server upgrades HTTP requests on the crash endpoint into hub clients.
type Server struct {
	hub      *Hub
	game     Game
	users    UserLookup
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	rateLimit rate.Limit
	rateBurst int
}

func NewServer(hub *Hub, game Game, users UserLookup, opts Options) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = config.DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = config.DefaultRateBurst
	}

	s := &Server{
		hub:       hub,
		game:      game,
		users:     users,
		metrics:   opts.Metrics,
		rateLimit: rate.Limit(opts.RateLimit),
		rateBurst: opts.RateBurst,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return opts.AllowedOrigin == "" || opts.AllowedOrigin == "*" || origin == "" || origin == opts.AllowedOrigin
		},
	}
	return s
}

// HandleWS is the crash game WebSocket endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("❌ WebSocket upgrade failed:", err)
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan []byte, config.SendBufferSize),
		limiter: rate.NewLimiter(s.rateLimit, s.rateBurst),
	}
	client.alive.Store(true)
	log.Printf("📥 WebSocket connection %s from %s", client.ID, r.RemoteAddr)

	// Register and queue the snapshot atomically with respect to broadcasts.
	s.game.WithSnapshot(func(snapshot protocol.GameState) {
		if data, err := json.Marshal(snapshot); err != nil {
			log.Printf("❌ Failed to marshal game state: %v", err)
		} else {
			client.Send <- data
		}
		s.hub.add(client)
	})

	go client.writePump()
	go client.readPump(s)
}

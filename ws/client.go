package ws

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"bierbaron/config"
	"bierbaron/crash"
	"bierbaron/protocol"
)

// Client is one live connection. Identity is bound at most once, by auth.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	alive   atomic.Bool
	limiter *rate.Limiter
	user    *crash.User
}

func (c *Client) bettor() crash.Bettor {
	b := crash.Bettor{ConnID: c.ID}
	if c.user != nil {
		b.UserID = c.user.ID
		b.DisplayName = c.user.DisplayName
	}
	return b
}

// writePump drains Send onto the socket until Send is closed or a write fails.
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("❌ Write error for client %s: %v", c.ID, err)
			return
		}
	}

	c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump reads frames and dispatches them one at a time until the
// connection fails, then cleans up exactly like a graceful disconnect.
func (c *Client) readPump(s *Server) {
	defer func() {
		if s.hub.remove(c) {
			s.game.Disconnect(c.ID)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(2 * s.hub.pingInterval))
	c.Conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return c.Conn.SetReadDeadline(time.Now().Add(2 * s.hub.pingInterval))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("❌ Read error for client %s: %v", c.ID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			s.metrics.ReadDropped()
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownKind) {
				log.Printf("⚠️  Client %s: %v", c.ID, err)
			}
			continue
		}
		c.handle(s, msg)
	}
}

// handle applies one decoded frame. Invalid requests are dropped silently.
func (c *Client) handle(s *Server, msg protocol.ClientMessage) {
	ctx := context.Background()

	switch m := msg.(type) {
	case protocol.Auth:
		c.authenticate(ctx, s, m.UserID)
	case protocol.Bet:
		s.game.Bet(ctx, c.bettor(), m.Amount)
	case protocol.Cashout:
		s.game.Cashout(ctx, c.ID)
	}
}

func (c *Client) authenticate(ctx context.Context, s *Server, userID int64) {
	if c.user != nil || userID <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, config.LedgerTimeout)
	defer cancel()

	u, err := s.users.LookupUser(ctx, userID)
	if err != nil {
		log.Printf("❌ Auth lookup for user %d failed: %v", userID, err)
		return
	}
	if u == nil {
		return
	}

	c.user = u
	log.Printf("🔑 Client %s authenticated as %s (user %d)", c.ID, u.DisplayName, u.ID)
}

package state

import (
	"sort"
	"time"

	"bierbaron/config"
)

// ==============================================================================
// CRASH ROUND STATE
// ==============================================================================
//
// NOTE:
// These types carry no locks. The crash engine owns a single Round and a
// single Players registry and serializes every access behind its own mutex.
//
// ==============================================================================

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseBetting Phase = "betting"
	PhaseRunning Phase = "running"
	PhaseCrashed Phase = "crashed"
)

// AcceptsBets reports whether bets may be placed in this phase.
func (p Phase) AcceptsBets() bool { return p == PhaseBetting }

// AcceptsCashouts reports whether cashouts may be made in this phase.
func (p Phase) AcceptsCashouts() bool { return p == PhaseRunning }

// PublishesMultiplier reports whether the live multiplier is public.
func (p Phase) PublishesMultiplier() bool {
	return p == PhaseRunning || p == PhaseCrashed
}

type Round struct {
	ID         string
	Phase      Phase
	CrashPoint float64 `json:"-"`
	Multiplier float64
	StartedAt  time.Time

	ServerSeed string `json:"-"`
	SeedHash   string
}

func NewRound() *Round {
	return &Round{
		Phase:      PhaseWaiting,
		Multiplier: config.StartMultiplier,
	}
}

// Open starts a betting window with a freshly drawn crash point.
func (r *Round) Open(id string, crashPoint float64, serverSeed, seedHash string) {
	r.ID = id
	r.Phase = PhaseBetting
	r.CrashPoint = crashPoint
	r.Multiplier = config.StartMultiplier
	r.StartedAt = time.Time{}
	r.ServerSeed = serverSeed
	r.SeedHash = seedHash
}

// Start moves the round into running at now.
func (r *Round) Start(now time.Time) {
	r.Phase = PhaseRunning
	r.StartedAt = now
	r.Multiplier = config.StartMultiplier
}

// Advance applies a freshly computed multiplier. It never lets the multiplier
// move backwards and clamps to the crash point, returning true when that clamp
// ends the round.
func (r *Round) Advance(m float64) (crashed bool) {
	if m < r.Multiplier {
		m = r.Multiplier
	}
	if m >= r.CrashPoint {
		r.Multiplier = r.CrashPoint
		r.Phase = PhaseCrashed
		return true
	}
	r.Multiplier = m
	return false
}

// Crash ends the round at its crash point.
func (r *Round) Crash() {
	r.Multiplier = r.CrashPoint
	r.Phase = PhaseCrashed
}

// Reset returns the round to waiting between rounds.
func (r *Round) Reset() {
	r.Phase = PhaseWaiting
	r.Multiplier = config.StartMultiplier
	r.StartedAt = time.Time{}
}

// PublicMultiplier is the multiplier clients may see in this phase.
func (r *Round) PublicMultiplier() float64 {
	if r.Phase.PublishesMultiplier() {
		return r.Multiplier
	}
	return config.StartMultiplier
}

// ==============================================================================
// PLAYERS (per round)
// ==============================================================================

type Player struct {
	ConnID      string
	UserID      int64
	DisplayName string
	Bet         int64
	CashedOutAt *float64
	BetTime     time.Time
}

// PlayerView is the wire shape of a player in gameState/playerUpdate.
type PlayerView struct {
	UserID      int64    `json:"userId"`
	DiscordName string   `json:"discordName"`
	Bet         int64    `json:"bet"`
	CashedOutAt *float64 `json:"cashedOutAt,omitempty"`
}

func (p *Player) View() PlayerView {
	v := PlayerView{
		UserID:      p.UserID,
		DiscordName: p.DisplayName,
		Bet:         p.Bet,
	}
	if p.CashedOutAt != nil {
		m := *p.CashedOutAt
		v.CashedOutAt = &m
	}
	return v
}

// CashOut locks in m. It is a no-op returning false once a value is set.
func (p *Player) CashOut(m float64) bool {
	if p.CashedOutAt != nil {
		return false
	}
	p.CashedOutAt = &m
	return true
}

// Players maps connection id to that connection's player for the current round.
type Players struct {
	byConn map[string]*Player
}

func NewPlayers() *Players {
	return &Players{byConn: make(map[string]*Player)}
}

func (ps *Players) Get(connID string) (*Player, bool) {
	p, ok := ps.byConn[connID]
	return p, ok
}

func (ps *Players) Has(connID string) bool {
	_, ok := ps.byConn[connID]
	return ok
}

// Add registers p unless its connection already holds a player.
func (ps *Players) Add(p *Player) bool {
	if ps.Has(p.ConnID) {
		return false
	}
	ps.byConn[p.ConnID] = p
	return true
}

func (ps *Players) Remove(connID string) (*Player, bool) {
	p, ok := ps.byConn[connID]
	if ok {
		delete(ps.byConn, connID)
	}
	return p, ok
}

func (ps *Players) Len() int { return len(ps.byConn) }

// Clear drops every player and returns how many there were.
func (ps *Players) Clear() int {
	n := len(ps.byConn)
	ps.byConn = make(map[string]*Player)
	return n
}

// Views returns a copy of every player, ordered by bet time for stable output.
func (ps *Players) Views() []PlayerView {
	list := make([]*Player, 0, len(ps.byConn))
	for _, p := range ps.byConn {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].BetTime.Equal(list[j].BetTime) {
			return list[i].ConnID < list[j].ConnID
		}
		return list[i].BetTime.Before(list[j].BetTime)
	})

	views := make([]PlayerView, 0, len(list))
	for _, p := range list {
		views = append(views, p.View())
	}
	return views
}

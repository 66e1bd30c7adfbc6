package crash

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"bierbaron/config"
	"bierbaron/crypto"
	"bierbaron/game"
	"bierbaron/metrics"
	"bierbaron/protocol"
	"bierbaron/state"
)

// InsufficientBalanceMessage is sent to a bettor whose balance cannot cover the bet.
const InsufficientBalanceMessage = "Nicht genug Guthaben."

// Broadcaster delivers server frames. Both calls must not block.
type Broadcaster interface {
	Broadcast(msg any)
	SendTo(connID string, msg any)
}

// RoundMirror keeps a transient copy of the live round's players outside the
// process. It is optional and best effort.
type RoundMirror interface {
	RecordPlayer(ctx context.Context, roundID string, player state.PlayerView) error
	ClearRound(ctx context.Context, roundID string) error
}

// Bettor is the identity a connection acts under.
type Bettor struct {
	ConnID      string
	UserID      int64
	DisplayName string
}

func (b Bettor) Authenticated() bool { return b.UserID > 0 }

// Draw is the secret outcome of one round.
type Draw struct {
	CrashPoint float64
	ServerSeed string
	SeedHash   string
}

// Outcome reports what happened to a bet or cashout request.
type Outcome int

const (
	// Ignored requests failed a precondition and changed nothing.
	Ignored Outcome = iota
	// Accepted requests were committed to the ledger.
	Accepted
	// Rejected bets were refused for insufficient balance; the bettor was told.
	Rejected
	// Failed requests hit a ledger error and were rolled back.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return "ignored"
	}
}

// Engine is the round state machine. It is the only writer of the round's
// phase, crash point and multiplier; Bet and Cashout validate against the same
// lock and never hold it across ledger I/O.
type Engine struct {
	ledger  Ledger
	out     Broadcaster
	mirror    RoundMirror
	mirrorOps mirrorQueue
	metrics   *metrics.Metrics

	draw  func(roundID string) (Draw, error)
	newID func() string
	now   func() time.Time

	bettingDuration time.Duration
	tickInterval    time.Duration
	crashPause      time.Duration

	mu              sync.Mutex
	round           *state.Round
	players         *state.Players
	bettingClosed   bool
	pendingBets     map[string]bool // connID -> still connected
	pendingCashouts map[string]bool

	// bets holds debits in flight; closing the betting window waits on it.
	bets sync.WaitGroup
	// cashouts holds credits in flight; Reset waits on it.
	cashouts sync.WaitGroup
}

// Option configures an Engine in NewEngine.
type Option func(*Engine)

// WithDrawer replaces the provably fair crash point draw.
func WithDrawer(draw func(roundID string) (Draw, error)) Option {
	return func(e *Engine) { e.draw = draw }
}

func WithTimings(betting, tick, pause time.Duration) Option {
	return func(e *Engine) {
		e.bettingDuration = betting
		e.tickInterval = tick
		e.crashPause = pause
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMirror(m RoundMirror) Option {
	return func(e *Engine) { e.mirror = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(ledger Ledger, out Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		ledger:          ledger,
		out:             out,
		draw:            SeededDraw,
		newID:           uuid.NewString,
		now:             time.Now,
		bettingDuration: config.BettingDuration,
		tickInterval:    config.TickInterval,
		crashPause:      config.CrashPause,
		round:           state.NewRound(),
		players:         state.NewPlayers(),
		pendingBets:     make(map[string]bool),
		pendingCashouts: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SeededDraw commits to a fresh server seed and derives the crash point from
// it and the round id.
func SeededDraw(roundID string) (Draw, error) {
	seed, hash, err := crypto.GenerateServerSeed()
	if err != nil {
		return Draw{}, err
	}
	return Draw{
		CrashPoint: game.CrashPointForSeed(seed, roundID),
		ServerSeed: seed,
		SeedHash:   hash,
	}, nil
}

/* =========================
   ROUND LOOP
========================= */

// Run drives rounds until ctx is cancelled. Cancellation is honored between
// rounds: a round that has taken bets is always played out to its crash.
func (e *Engine) Run(ctx context.Context) error {
	log.Println("🎰 Crash round loop started")
	for {
		if err := ctx.Err(); err != nil {
			log.Println("🛑 Crash round loop stopped")
			return err
		}
		e.playRound(ctx)
	}
}

func (e *Engine) playRound(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Crash round panicked: %v", r)
			e.abandonRound()
			sleep(ctx, e.crashPause)
		}
	}()

	if err := e.StartBetting(); err != nil {
		log.Printf("❌ Failed to open round: %v", err)
		sleep(ctx, e.crashPause)
		return
	}
	fullWindow := sleep(ctx, e.bettingDuration)
	if !e.CloseBetting() {
		e.SkipRound()
		if fullWindow {
			sleep(ctx, e.crashPause)
		}
		return
	}
	if !fullWindow {
		log.Printf("🛑 Shutdown during betting, playing out round %s first", e.CurrentRound().ID)
	}

	e.StartRunning(e.now())
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for range ticker.C {
		if e.Tick(e.now()) {
			break
		}
	}

	sleep(ctx, e.crashPause)
	e.Reset()
}

// sleep waits d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

/* =========================
   PHASE STEPS
========================= */

// StartBetting opens a new round with a fresh crash point and announces it.
func (e *Engine) StartBetting() error {
	id := e.newID()
	d, err := e.draw(id)
	if err != nil {
		return fmt.Errorf("failed to draw crash point: %w", err)
	}
	if d.CrashPoint < config.MinCrashPoint || math.IsNaN(d.CrashPoint) {
		return fmt.Errorf("drawn crash point %v below %v", d.CrashPoint, config.MinCrashPoint)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.players.Clear()
	e.bettingClosed = false
	e.round.Open(id, d.CrashPoint, d.ServerSeed, d.SeedHash)
	e.out.Broadcast(protocol.NewNewRound(e.bettingDuration.Milliseconds(), id, d.SeedHash))
	log.Printf("🎲 Round %s open for bets (%s), seed hash %s", id, e.bettingDuration, d.SeedHash)
	return nil
}

// CloseBetting stops accepting bets, waits for debits already in flight and
// reports whether anyone is playing.
func (e *Engine) CloseBetting() bool {
	e.mu.Lock()
	e.bettingClosed = true
	e.mu.Unlock()

	e.bets.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.players.Len() > 0
}

// SkipRound ends a round nobody bet on without ever running it.
func (e *Engine) SkipRound() {
	e.mu.Lock()
	defer e.mu.Unlock()

	log.Printf("⏭️  Round %s skipped, no bets", e.round.ID)
	e.round.Reset()
	e.metrics.RoundSkipped()
}

func (e *Engine) StartRunning(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.round.Start(now)
	e.out.Broadcast(protocol.NewRoundStart())
	log.Printf("🚀 Round %s running with %d players", e.round.ID, e.players.Len())
}

// Tick recomputes the multiplier for now. The tick that reaches the crash
// point clamps to it, broadcasts the crash and returns true. Ticks outside
// Running change nothing and also return true.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Phase != state.PhaseRunning {
		return true
	}

	m := game.MultiplierAt(now.Sub(e.round.StartedAt))
	if !e.round.Advance(m) {
		e.out.Broadcast(protocol.NewMultiplierUpdate(e.round.Multiplier))
		return false
	}

	e.out.Broadcast(protocol.NewCrash(e.round.Multiplier, e.round.ID, e.round.ServerSeed))
	e.metrics.RoundPlayed(e.round.CrashPoint)
	log.Printf("💥 Round %s crashed at %.2fx", e.round.ID, e.round.CrashPoint)
	return true
}

// Reset clears the round's players once in-flight cashouts have settled and
// returns the machine to waiting.
func (e *Engine) Reset() {
	e.cashouts.Wait()

	e.mu.Lock()
	roundID := e.round.ID
	cleared := e.players.Clear()
	e.round.Reset()
	e.mu.Unlock()

	if cleared > 0 {
		log.Printf("🧹 Cleared %d players from round %s", cleared, roundID)
	}
	if e.mirror != nil && roundID != "" {
		e.mirrorOps.push(func(ctx context.Context) {
			if err := e.mirror.ClearRound(ctx, roundID); err != nil {
				log.Printf("⚠️  Failed to clear round mirror: %v", err)
			}
		})
	}
}

// abandonRound recovers from a panic mid-round. Bets already debited stay
// forfeited, matching a disconnect.
func (e *Engine) abandonRound() {
	e.mu.Lock()
	e.bettingClosed = true
	if e.round.Phase == state.PhaseRunning || e.round.Phase == state.PhaseBetting {
		e.round.Crash()
	}
	e.mu.Unlock()
	e.Reset()
}

/* =========================
   PLAYER OPERATIONS
========================= */

// Bet places a bet of floor(amount) for b. Only an insufficient balance is
// reported back to the bettor; every other refusal is silent.
func (e *Engine) Bet(ctx context.Context, b Bettor, amount float64) Outcome {
	stake, ok := e.reserveBet(b, amount)
	if !ok {
		return Ignored
	}
	defer e.bets.Done()

	txCtx, cancel := context.WithTimeout(ctx, config.LedgerTimeout)
	err := debit(txCtx, e.ledger, b.UserID, stake)
	cancel()

	return e.settleBet(b, stake, err)
}

func (e *Engine) reserveBet(b Bettor, amount float64) (int64, bool) {
	if !b.Authenticated() || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	floored := math.Floor(amount)
	if floored <= 0 || floored > math.MaxInt64/2 {
		return 0, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.round.Phase.AcceptsBets() || e.bettingClosed {
		return 0, false
	}
	if e.players.Has(b.ConnID) {
		return 0, false
	}
	if _, pending := e.pendingBets[b.ConnID]; pending {
		return 0, false
	}

	e.pendingBets[b.ConnID] = true
	e.bets.Add(1)
	return int64(floored), true
}

func (e *Engine) settleBet(b Bettor, stake int64, err error) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	connected := e.pendingBets[b.ConnID]
	delete(e.pendingBets, b.ConnID)

	switch {
	case isInsufficient(err):
		e.metrics.Bet(Rejected.String(), stake)
		e.out.SendTo(b.ConnID, protocol.NewError(InsufficientBalanceMessage))
		return Rejected
	case err != nil:
		e.metrics.Bet(Failed.String(), stake)
		log.Printf("❌ Bet of %d for user %d failed: %v", stake, b.UserID, err)
		return Failed
	}

	e.metrics.Bet(Accepted.String(), stake)
	if !connected {
		log.Printf("⚠️  User %d disconnected while betting %d, bet forfeited", b.UserID, stake)
		return Accepted
	}

	p := &state.Player{
		ConnID:      b.ConnID,
		UserID:      b.UserID,
		DisplayName: b.DisplayName,
		Bet:         stake,
		BetTime:     e.now(),
	}
	e.players.Add(p)
	e.out.Broadcast(protocol.NewPlayerUpdate(e.players.Views()))
	e.recordPlayer(e.round.ID, p.View())
	log.Printf("💰 %s (user %d) bet %d in round %s", b.DisplayName, b.UserID, stake, e.round.ID)
	return Accepted
}

// Cashout locks in the current multiplier for connID's player and credits
// floor(bet * multiplier). The multiplier is captured under the engine lock,
// so a cashout that beats the crashing tick to the lock wins.
func (e *Engine) Cashout(ctx context.Context, connID string) Outcome {
	p, m, ok := e.reserveCashout(connID)
	if !ok {
		return Ignored
	}
	defer e.cashouts.Done()

	payout := game.Payout(p.Bet, m)
	txCtx, cancel := context.WithTimeout(ctx, config.LedgerTimeout)
	err := credit(txCtx, e.ledger, p.UserID, payout, m)
	cancel()

	return e.settleCashout(p, m, payout, err)
}

func (e *Engine) reserveCashout(connID string) (*state.Player, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.round.Phase.AcceptsCashouts() {
		return nil, 0, false
	}
	p, ok := e.players.Get(connID)
	if !ok || p.CashedOutAt != nil || e.pendingCashouts[connID] {
		return nil, 0, false
	}

	e.pendingCashouts[connID] = true
	e.cashouts.Add(1)
	return p, e.round.Multiplier, true
}

func (e *Engine) settleCashout(p *state.Player, m float64, payout int64, err error) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.pendingCashouts, p.ConnID)

	if err != nil {
		e.metrics.Cashout(Failed.String(), payout)
		log.Printf("❌ Cashout of %d for user %d failed: %v", payout, p.UserID, err)
		return Failed
	}

	e.metrics.Cashout(Accepted.String(), payout)
	p.CashOut(m)
	log.Printf("🏃 %s (user %d) cashed out %d at %.2fx", p.DisplayName, p.UserID, payout, m)

	e.out.SendTo(p.ConnID, protocol.NewCashoutSuccess(payout))
	if current, ok := e.players.Get(p.ConnID); ok && current == p {
		e.out.Broadcast(protocol.NewPlayerUpdate(e.players.Views()))
		e.recordPlayer(e.round.ID, p.View())
	}
	return Accepted
}

// Disconnect drops connID's player for the rest of the round. The bet is not
// refunded.
func (e *Engine) Disconnect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, pending := e.pendingBets[connID]; pending {
		e.pendingBets[connID] = false
	}

	p, ok := e.players.Remove(connID)
	if !ok {
		return
	}
	log.Printf("👋 %s (user %d) left round %s, bet of %d forfeited", p.DisplayName, p.UserID, e.round.ID, p.Bet)
	e.out.Broadcast(protocol.NewPlayerUpdate(e.players.Views()))
}

// Snapshot is the public view of the round for a newly connected client.
func (e *Engine) Snapshot() protocol.GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return protocol.NewGameState(e.round.Phase, e.round.PublicMultiplier(), e.players.Views())
}

// WithSnapshot calls fn with the current snapshot while holding the engine
// lock. Nothing is broadcast between the snapshot and fn returning, so a
// subscriber registered inside fn misses no update. fn must not call back
// into the engine.
func (e *Engine) WithSnapshot(fn func(protocol.GameState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(protocol.NewGameState(e.round.Phase, e.round.PublicMultiplier(), e.players.Views()))
}

// RoundInfo is the public identity of the current round.
type RoundInfo struct {
	ID       string      `json:"roundId"`
	Phase    state.Phase `json:"phase"`
	SeedHash string      `json:"seedHash"`
	// Players still holding an open position (bet placed, not cashed out).
	OpenPlayers int `json:"openPlayers"`
}

func (e *Engine) CurrentRound() RoundInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := 0
	for _, v := range e.players.Views() {
		if v.CashedOutAt == nil {
			open++
		}
	}
	return RoundInfo{ID: e.round.ID, Phase: e.round.Phase, SeedHash: e.round.SeedHash, OpenPlayers: open}
}

func (e *Engine) recordPlayer(roundID string, view state.PlayerView) {
	if e.mirror == nil {
		return
	}
	e.mirrorOps.push(func(ctx context.Context) {
		if err := e.mirror.RecordPlayer(ctx, roundID, view); err != nil {
			log.Printf("⚠️  Failed to mirror player %d: %v", view.UserID, err)
		}
	})
}

// mirrorQueue runs mirror writes one at a time in submission order, so a
// round's clear can never overtake a record queued before it. A drainer
// goroutine exists only while work is queued.
type mirrorQueue struct {
	mu       sync.Mutex
	ops      []func(ctx context.Context)
	draining bool
}

func (q *mirrorQueue) push(op func(ctx context.Context)) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	go q.drain()
}

func (q *mirrorQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), config.LedgerTimeout)
		op(ctx)
		cancel()
	}
}

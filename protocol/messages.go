package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"bierbaron/state"
)

/* =========================
   CLIENT -> SERVER
========================= */

type Kind string

const (
	KindAuth    Kind = "auth"
	KindBet     Kind = "bet"
	KindCashout Kind = "cashout"
)

// ErrUnknownKind marks a well-formed frame whose type the server does not handle.
var ErrUnknownKind = errors.New("unknown message type")

// envelope is the raw frame: {type, payload}.
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is one of Auth, Bet or Cashout.
type ClientMessage interface {
	Kind() Kind
}

type Auth struct {
	UserID int64 `json:"userId"`
}

type Bet struct {
	Amount float64 `json:"amount"`
}

type Cashout struct{}

func (Auth) Kind() Kind    { return KindAuth }
func (Bet) Kind() Kind     { return KindBet }
func (Cashout) Kind() Kind { return KindCashout }

// Decode parses a client frame into its concrete message.
func Decode(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	switch env.Type {
	case KindAuth:
		var a Auth
		if err := decodePayload(env.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case KindBet:
		var b Bet
		if err := decodePayload(env.Payload, &b); err != nil {
			return nil, err
		}
		return b, nil
	case KindCashout:
		return Cashout{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

/* =========================
   SERVER -> CLIENT
========================= */

type GameState struct {
	Type       string             `json:"type"`
	Phase      state.Phase        `json:"phase"`
	Multiplier float64            `json:"multiplier"`
	Players    []state.PlayerView `json:"players"`
}

type NewRound struct {
	Type     string      `json:"type"`
	Phase    state.Phase `json:"phase"`
	Duration int64       `json:"duration"`
	RoundID  string      `json:"roundId"`
	SeedHash string      `json:"seedHash"`
}

type RoundStart struct {
	Type  string      `json:"type"`
	Phase state.Phase `json:"phase"`
}

type MultiplierUpdate struct {
	Type       string  `json:"type"`
	Multiplier float64 `json:"multiplier"`
}

type Crash struct {
	Type       string  `json:"type"`
	Multiplier float64 `json:"multiplier"`
	RoundID    string  `json:"roundId"`
	ServerSeed string  `json:"serverSeed"`
}

type PlayerUpdate struct {
	Type    string             `json:"type"`
	Players []state.PlayerView `json:"players"`
}

type CashoutSuccess struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewGameState(phase state.Phase, multiplier float64, players []state.PlayerView) GameState {
	return GameState{Type: "gameState", Phase: phase, Multiplier: multiplier, Players: nonNil(players)}
}

func NewNewRound(durationMs int64, roundID, seedHash string) NewRound {
	return NewRound{Type: "newRound", Phase: state.PhaseBetting, Duration: durationMs, RoundID: roundID, SeedHash: seedHash}
}

func NewRoundStart() RoundStart {
	return RoundStart{Type: "roundStart", Phase: state.PhaseRunning}
}

func NewMultiplierUpdate(m float64) MultiplierUpdate {
	return MultiplierUpdate{Type: "multiplierUpdate", Multiplier: m}
}

func NewCrash(m float64, roundID, serverSeed string) Crash {
	return Crash{Type: "crash", Multiplier: m, RoundID: roundID, ServerSeed: serverSeed}
}

func NewPlayerUpdate(players []state.PlayerView) PlayerUpdate {
	return PlayerUpdate{Type: "playerUpdate", Players: nonNil(players)}
}

func NewCashoutSuccess(amount int64) CashoutSuccess {
	return CashoutSuccess{Type: "cashout_success", Amount: amount}
}

func NewError(message string) Error {
	return Error{Type: "error", Message: message}
}

// nonNil keeps player lists an array on the wire, never null.
func nonNil(players []state.PlayerView) []state.PlayerView {
	if players == nil {
		return []state.PlayerView{}
	}
	return players
}

package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"bierbaron/state"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    ClientMessage
		wantErr bool
	}{
		{"auth", `{"type":"auth","payload":{"userId":42}}`, Auth{UserID: 42}, false},
		{"bet", `{"type":"bet","payload":{"amount":100}}`, Bet{Amount: 100}, false},
		{"fractional bet", `{"type":"bet","payload":{"amount":12.7}}`, Bet{Amount: 12.7}, false},
		{"cashout", `{"type":"cashout"}`, Cashout{}, false},
		{"cashout ignores payload", `{"type":"cashout","payload":{"x":1}}`, Cashout{}, false},
		{"bet without payload", `{"type":"bet"}`, nil, true},
		{"auth with null payload", `{"type":"auth","payload":null}`, nil, true},
		{"bet with string amount", `{"type":"bet","payload":{"amount":"lots"}}`, nil, true},
		{"not json", `hello`, nil, true},
		{"unknown kind", `{"type":"chat","payload":{}}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %#v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeUnknownKindIsDistinguishable(t *testing.T) {
	_, err := Decode([]byte(`{"type":"subscribe"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestServerFramesWireShape(t *testing.T) {
	m := 1.8
	frames := map[string]any{
		`{"type":"gameState","phase":"waiting","multiplier":1,"players":[]}`:                          NewGameState(state.PhaseWaiting, 1, nil),
		`{"type":"roundStart","phase":"running"}`:                                                     NewRoundStart(),
		`{"type":"multiplierUpdate","multiplier":1.05}`:                                               NewMultiplierUpdate(1.05),
		`{"type":"cashout_success","amount":180}`:                                                     NewCashoutSuccess(180),
		`{"type":"error","message":"Nicht genug Guthaben."}`:                                          NewError("Nicht genug Guthaben."),
		`{"type":"playerUpdate","players":[{"userId":1,"discordName":"A","bet":100,"cashedOutAt":1.8}]}`: NewPlayerUpdate([]state.PlayerView{{UserID: 1, DiscordName: "A", Bet: 100, CashedOutAt: &m}}),
	}

	for want, frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(data) != want {
			t.Errorf("got %s, want %s", data, want)
		}
	}

	data, _ := json.Marshal(NewNewRound(10000, "r1", "abc"))
	for _, part := range []string{`"type":"newRound"`, `"phase":"betting"`, `"duration":10000`} {
		if !strings.Contains(string(data), part) {
			t.Errorf("newRound frame %s missing %s", data, part)
		}
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RoundPlayed(2)
	m.RoundSkipped()
	m.Bet("accepted", 10)
	m.Cashout("accepted", 18)
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SendDropped()
	m.ReadDropped()
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RoundPlayed(2.5)
	m.RoundSkipped()
	m.Bet("accepted", 100)
	m.Bet("rejected", 0)
	m.Cashout("accepted", 180)
	m.ConnectionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`bierbaron_crash_rounds_total{outcome="played"} 1`,
		`bierbaron_crash_rounds_total{outcome="skipped"} 1`,
		`bierbaron_crash_bets_total{result="accepted"} 1`,
		`bierbaron_crash_bets_total{result="rejected"} 1`,
		`bierbaron_crash_wagered_total 100`,
		`bierbaron_crash_paid_out_total 180`,
		`bierbaron_ws_connections 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

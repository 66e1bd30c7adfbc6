package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the crash server's prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	registry *prometheus.Registry

	rounds       *prometheus.CounterVec
	bets         *prometheus.CounterVec
	cashouts     *prometheus.CounterVec
	wagered      prometheus.Counter
	paidOut      prometheus.Counter
	crashPoints  prometheus.Histogram
	connections  prometheus.Gauge
	droppedSends prometheus.Counter
	droppedReads prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "crash",
			Name:      "rounds_total",
			Help:      "Crash rounds by outcome (played or skipped for lack of bets).",
		}, []string{"outcome"}),
		bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "crash",
			Name:      "bets_total",
			Help:      "Bet attempts that reached the ledger, by result.",
		}, []string{"result"}),
		cashouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "crash",
			Name:      "cashouts_total",
			Help:      "Cashout attempts that reached the ledger, by result.",
		}, []string{"result"}),
		wagered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "crash",
			Name:      "wagered_total",
			Help:      "Bierkästen debited for crash bets.",
		}),
		paidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "crash",
			Name:      "paid_out_total",
			Help:      "Bierkästen credited for crash cashouts.",
		}),
		crashPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bierbaron",
			Subsystem: "crash",
			Name:      "crash_point",
			Help:      "Crash points of played rounds.",
			Buckets:   []float64{1.01, 1.1, 1.25, 1.5, 2, 3, 5, 10, 25, 100, 1000},
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bierbaron",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
		droppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "ws",
			Name:      "dropped_sends_total",
			Help:      "Outbound frames dropped because a client's buffer was full.",
		}),
		droppedReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bierbaron",
			Subsystem: "ws",
			Name:      "dropped_reads_total",
			Help:      "Inbound frames dropped by the per-connection rate limit.",
		}),
	}

	m.registry.MustRegister(
		m.rounds, m.bets, m.cashouts, m.wagered, m.paidOut,
		m.crashPoints, m.connections, m.droppedSends, m.droppedReads,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RoundPlayed(crashPoint float64) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues("played").Inc()
	m.crashPoints.Observe(crashPoint)
}

func (m *Metrics) RoundSkipped() {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues("skipped").Inc()
}

// Bet records a ledger bet result: accepted, rejected or failed.
func (m *Metrics) Bet(result string, amount int64) {
	if m == nil {
		return
	}
	m.bets.WithLabelValues(result).Inc()
	if result == "accepted" {
		m.wagered.Add(float64(amount))
	}
}

// Cashout records a ledger cashout result: accepted or failed.
func (m *Metrics) Cashout(result string, payout int64) {
	if m == nil {
		return
	}
	m.cashouts.WithLabelValues(result).Inc()
	if result == "accepted" {
		m.paidOut.Add(float64(payout))
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SendDropped() {
	if m == nil {
		return
	}
	m.droppedSends.Inc()
}

func (m *Metrics) ReadDropped() {
	if m == nil {
		return
	}
	m.droppedReads.Inc()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bierbaron/api"
	"bierbaron/config"
	"bierbaron/crash"
	"bierbaron/db"
	"bierbaron/metrics"
	"bierbaron/ws"
)

func main() {
	root := &cobra.Command{
		Use:          "bierbaron",
		Short:        "Bierbaron crash game server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newSimulateCommand())

	if err := root.Execute(); err != nil {
		log.Fatal("❌ ", err)
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the crash round loop, WebSocket endpoint and HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides APP_PORT)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	cmd.Flags().String("redis-url", "", "Redis address (overrides REDIS_URL)")
	cmd.Flags().String("log-file", "", "also log to this rotated file (overrides LOG_FILE)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logCloser := config.SetupLogging(cfg)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	handlers := &api.Handlers{AllowedOrigin: cfg.FrontendOrigin}
	engineOpts := []crash.Option{crash.WithMetrics(m)}

	// Ledger: PostgreSQL, or an in-memory ledger for local development.
	var ledger crash.Ledger
	if cfg.DatabaseURL == "" {
		log.Println("⚠️  DATABASE_URL not set, using in-memory ledger with demo users")
		log.Println("   Balances are lost on restart")
		ledger = newDevLedger()
	} else {
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer pg.Close()
		ledger = pg
		handlers.Leaderboard = pg
		handlers.Postgres = pg
	}

	mirror, err := db.NewRoundMirror(ctx, db.RedisOptions{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Printf("⚠️  Warning: Redis initialization failed: %v", err)
		log.Println("   Live round mirror disabled")
	} else {
		defer mirror.Close()
		engineOpts = append(engineOpts, crash.WithMirror(mirror))
		handlers.Redis = mirror
	}

	hub := ws.NewHub(m)
	engine := crash.NewEngine(ledger, hub, engineOpts...)
	handlers.Round = engine

	wsServer := ws.NewServer(hub, engine, ledger, ws.Options{
		AllowedOrigin: cfg.FrontendOrigin,
		RateLimit:     cfg.WSRateLimit,
		RateBurst:     cfg.WSRateBurst,
		Metrics:       m,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWS)
	handlers.Register(mux, m)

	go hub.Run(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(ctx) }()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.Addr())
		log.Println("")
		log.Println("📡 WebSocket Endpoints:")
		log.Println("   /ws - Crash game (auth, bet, cashout)")
		log.Println("")
		log.Println("🔌 API Endpoints:")
		log.Println("   GET  /api/health - Health check (PostgreSQL + Redis)")
		log.Println("   GET  /api/crash/state - Current round snapshot")
		log.Println("   POST /api/crash/verify - Verify a finished round")
		log.Println("   GET  /api/leaderboard/balance - Top wallets")
		log.Println("   GET  /api/leaderboard/bigwin - Biggest crash wins")
		log.Println("   GET  /metrics - Prometheus metrics")
		log.Println("")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("🛑 Shutting down...")
	case err := <-serverErr:
		stop()
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}

	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		round := engine.CurrentRound()
		log.Printf("⚠️  Round %s still %s at shutdown, abandoning it with %d open players (stakes not refunded)",
			round.ID, round.Phase, round.OpenPlayers)
	}
	return nil
}

// newDevLedger seeds a few demo users so the game is playable without a database.
func newDevLedger() *crash.MemoryLedger {
	ledger := crash.NewMemoryLedger()
	for id, name := range map[int64]string{1: "Bierbaron", 2: "Hopfenkönig", 3: "Malzmeister"} {
		ledger.AddUser(id, name, 1000)
		log.Printf("🍺 Demo user %d (%s) with 1000 Bierkästen", id, name)
	}
	return ledger
}

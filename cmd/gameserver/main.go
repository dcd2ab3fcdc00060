package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chessvariants-server/config"
	"chessvariants-server/internal/dispatcher"
	"chessvariants-server/internal/gateway"
	"chessvariants-server/internal/logger"
	"chessvariants-server/internal/matchmaker"
	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/store/session"
	"chessvariants-server/internal/tournament"
	"chessvariants-server/internal/userstore"
)

const idleLaneTimeout = 10 * time.Minute

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[gameserver] starting...")

	cfg := config.Load()
	slogger := logger.Init("gameserver", slog.LevelInfo)

	m := metrics.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := session.New(ctx, session.Config{
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		SQLitePath:        cfg.SQLitePath,
		Metrics:           m,
		Logger:            slogger,
		SessionTTLSeconds: cfg.SessionTTLSeconds,
	})
	if err != nil {
		log.Fatalf("[gameserver] session store init failed: %v", err)
	}
	defer store.Close()

	hub := gateway.NewHub(m, slogger)
	d := dispatcher.New(store, hub, m, slogger, idleLaneTimeout)

	users := userstore.Static{}

	mm := matchmaker.New(store, users, hub, m, slogger, matchmaker.Tuning{
		CooldownMs:        int64(cfg.CooldownSeconds) * 1000,
		IdleSweepInterval: time.Duration(cfg.IdleSweepIntervalSeconds) * time.Second,
		IdleEvictAfter:    time.Duration(cfg.IdleWaitCapSeconds) * time.Second,
	})
	tm := tournament.New(mm, store, hub, m, slogger)
	mm.SetTournamentSource(tm)

	srv := gateway.NewServer(hub, d, mm, tm, store, m, slogger, cfg.SigningSecret)

	mux := http.NewServeMux()
	processStart := time.Now()
	srv.RegisterRoutes(mux, processStart)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	health := metrics.NewHealthStatus()
	health.SetDispatcherOK(true)
	health.StartLivenessChecker(ctx, store.RedisClient(), store.SQLDB(), 15*time.Second)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	mm.StartIdleSweep(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[gameserver] serving at %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[gameserver] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[gameserver] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

// replayd serves windowed multi-resolution views of a single master candle
// series and drives the authoritative replay clock. It loads the base series
// from SQLite at startup, exposes the request surface over HTTP/WebSocket,
// and mirrors engine events to Redis and Prometheus.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chartreplay/config"
	"chartreplay/internal/bus"
	"chartreplay/internal/cache"
	"chartreplay/internal/contamination"
	"chartreplay/internal/engine"
	"chartreplay/internal/gateway"
	"chartreplay/internal/lifecycle"
	"chartreplay/internal/logger"
	"chartreplay/internal/metrics"
	"chartreplay/internal/model"
	"chartreplay/internal/replay"
	"chartreplay/internal/series"
	redisstore "chartreplay/internal/store/redis"
	sqlitestore "chartreplay/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.Init("replayd", logger.ParseLevel(cfg.LogLevel))

	tfs, err := cfg.ParseTimeframes()
	if err != nil {
		log.Error("invalid timeframe config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Base series: loaded once, read-only thereafter.
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Error("sqlite open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	candles, err := reader.ReadBaseCandles(cfg.Symbol)
	reader.Close()
	if err != nil {
		log.Error("series load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store, err := series.Load(candles)
	if err != nil {
		log.Error("series index failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.New()

	// Window cache + prefetch.
	wc := cache.New(store, cfg.CacheCapacity)
	wc.OnHit = m.CacheHits.Inc
	wc.OnMiss = m.CacheMisses.Inc
	wc.OnEvict = m.CacheEvictions.Inc
	pf := cache.NewPrefetcher(wc, cfg.PrefetchQueueSize)
	pf.OnEnqueue = m.PrefetchEnqueued.Inc
	pf.OnExecute = m.PrefetchExecuted.Inc
	pf.OnDrop = m.PrefetchDropped.Inc
	wc.SetPrefetcher(pf)

	// Temporal unit: clock + tracker + coordinator + lifecycle machine.
	clock := replay.NewClock()
	tracker := contamination.NewTracker()
	tracker.OnLevelChange = func(tf model.Timeframe, level model.ContaminationLevel) {
		m.ContaminationLevel.WithLabelValues(string(tf)).Set(float64(level))
	}
	coord := replay.NewCoordinator(store, clock, tracker, tfs, log)
	machine := lifecycle.NewMachine()

	events := bus.New(256)
	events.OnDrop = func(int) { m.EventsDropped.Inc() }

	eng := engine.New(store, wc, clock, coord, tracker, machine, events, cfg.WindowCount, log)
	eng.OnStep = func(tf model.Timeframe) { m.StepsTotal.WithLabelValues(string(tf)).Inc() }
	eng.OnJump = m.JumpsTotal.Inc
	eng.OnSwitch = func(recreated bool) {
		m.SwitchesTotal.Inc()
		if recreated {
			m.Recreations.Inc()
		}
	}
	eng.OnWindowDur = func(d time.Duration) { m.WindowBuildDur.Observe(d.Seconds()) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Observers: WebSocket hub, optional Redis mirror, Prometheus.
	hub := gateway.NewHub()
	go hub.Run(ctx, events.Subscribe())

	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			// Redis is a best-effort mirror; run without it.
			log.Warn("redis unavailable, events not mirrored", slog.String("error", err.Error()))
		} else {
			defer pub.Close()
			go pub.Run(ctx, events.Subscribe())
		}
	}

	go m.Serve(cfg.MetricsAddr)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: gateway.NewServer(eng, hub).Routes(),
	}
	go func() {
		log.Info("listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	cancel()
	events.Close()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tickstream/config"
	"tickstream/internal/logger"
	"tickstream/internal/metrics"
	"tickstream/internal/model"
	"tickstream/internal/ringbuf"
	redisstore "tickstream/internal/store/redis"
	sqlitestore "tickstream/internal/store/sqlite"
	"tickstream/internal/stream"
)

func main() {
	cfg := config.Load()
	log := logger.Init("streamer", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "feed", cfg.FeedWSURL)

	mode := stream.Mode(cfg.SubscribeMode)
	if !mode.Valid() {
		log.Error("invalid subscribe mode", "mode", cfg.SubscribeMode)
		os.Exit(1)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite tick journal (off hot path) ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()
	sqlWriter.ObserveCommitDur = prom.SQLiteCommitDur.Observe
	health.SetSQLiteOK(true)
	log.Info("sqlite journal ready", "path", cfg.SQLitePath)

	// ---- Redis latest-tick writer behind a circuit breaker ----
	var buffered *redisstore.BufferedWriter
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis init failed, continuing without redis", "error", err)
		health.SetRedisConnected(false)
	} else {
		redisWriter.ObserveWriteDur = prom.RedisWriteDur.Observe
		health.SetRedisConnected(true)

		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Warn("redis circuit breaker transition", "from", from.String(), "to", to.String())
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		buffered = redisstore.NewBufferedWriter(ctx, redisWriter, cb)
		defer redisWriter.Close()
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Persistence pump: ring buffer decouples dispatch from stores ----
	ring := ringbuf.New(8192)
	sqliteCh := make(chan model.Tick, 10000)
	go sqlWriter.Run(ctx, sqliteCh)

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			t, ok := ring.Pop()
			if !ok {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if buffered != nil {
				if err := buffered.WriteTick(t); err != nil {
					log.Warn("redis tick write failed", "token", t.InstrumentToken, "error", err)
				}
			}
			select {
			case sqliteCh <- t:
			default:
				// Journal backlogged; the latest-tick path stays current.
			}
		}
	}()

	// ---- Streaming manager ----
	mgr := stream.New(stream.ManagerConfig{
		WSURL:           cfg.FeedWSURL,
		AccessToken:     cfg.AccessToken,
		Eligibility:     stream.NewHTTPEligibilityChecker(cfg.FeedAPIURL, cfg.AccessToken),
		DefaultCooldown: cfg.RateLimitDefaultCooldown,
		Observer:        prom,
	}, log)

	mgr.OnStateChange = func(s stream.State, msg string) {
		health.SetWSConnected(s == stream.StateConnected)
	}
	mgr.OnTick = func(t model.Tick) {
		health.SetLastTickTime(time.Now())
		if !ring.Push(t) {
			prom.RingBufOverflow.Inc()
		}
	}
	mgr.OnError = func(code, message string) {
		log.Warn("feed error", "code", code, "message", message)
	}
	mgr.OnOrderUpdate = func(data []byte) {
		log.Info("order update", "payload", string(data))
	}

	if err := mgr.Connect(); err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	tokens := cfg.ParseTokens()
	if len(tokens) > 0 {
		if err := mgr.Subscribe(tokens, mode); err != nil {
			log.Error("subscribe failed", "error", err)
			os.Exit(1)
		}
		log.Info("subscribed", "tokens", len(tokens), "mode", string(mode))
	}

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Info("shutdown signal received")

	mgr.Destroy()
	cancel()

	stats := mgr.Stats()
	log.Info("final stream stats",
		"messages", stats.MessagesReceived,
		"ticks", stats.TicksReceived,
		"errors", stats.Errors,
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Info("shutdown complete")
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"campaigner/internal/config"
	"campaigner/internal/dispatch"
	"campaigner/internal/httpserver"
	"campaigner/internal/logging"
	"campaigner/internal/observability"
	"campaigner/internal/personalize"
	"campaigner/internal/providers/gemini"
	"campaigner/internal/providers/waba"
	"campaigner/internal/scheduler"
	"campaigner/internal/store/pg"
)

func main() {
	cfg := config.LoadScheduler()
	logging.Init("scheduler", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		slog.Error("scheduler db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	store := pg.New(db)

	gateway := &waba.Client{
		APIKey:   cfg.GatewayAPIKey,
		SenderID: cfg.GatewaySender,
		BaseURL:  cfg.GatewayBaseURL,
		HTTP:     &http.Client{Timeout: cfg.GatewayTimeout + 2*time.Second},
	}

	var enhancer personalize.Enhancer
	if cfg.GeminiAPIKey != "" {
		gem, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("scheduler gemini client init failed", "err", err)
			os.Exit(1)
		}
		enhancer = gem
	}

	dispatcher := &dispatch.Dispatcher{
		Store:  store,
		Sender: gateway,
		Personalizer: &personalize.Personalizer{
			Enhancer:       enhancer,
			MinTemplateLen: cfg.EnhanceMinLen,
			Timeout:        cfg.EnhanceTimeout,
		},
		Limiter: rate.NewLimiter(rate.Limit(cfg.GatewayRPS), cfg.GatewayBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gateway",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
		BatchSize:   cfg.BatchSize,
		Stagger:     cfg.Stagger,
		SendTimeout: cfg.GatewayTimeout,
	}

	gw := &scheduler.Gateway{Store: store, Dispatcher: dispatcher}
	throttle := scheduler.NewThrottle(cfg.MinRunGap, nil)

	c := cron.New()
	if _, err := c.AddFunc(cfg.CronSpec, func() {
		if !throttle.Allow() {
			slog.Info("due scan throttled, too soon after last run")
			return
		}
		if _, err := gw.RunDue(ctx, "cron"); err != nil {
			slog.Error("due scan failed", "err", err)
		}
	}); err != nil {
		slog.Error("invalid cron spec", "spec", cfg.CronSpec, "err", err)
		os.Exit(1)
	}

	// health server (liveness + readiness)
	s := httpserver.New()
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))
	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}
	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("scheduler health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	slog.Info("scheduler started", "cron", cfg.CronSpec, "min_gap", cfg.MinRunGap)
	c.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("scheduler health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("scheduler shutdown", "signal", sig.String())
	}

	cancel()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		slog.Info("scheduler shutdown timeout waiting for running jobs")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}

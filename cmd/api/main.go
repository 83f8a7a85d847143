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
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.Migrate(cfg.DBDSN); err != nil {
		slog.Error("api migrate failed", "err", err)
		os.Exit(1)
	}

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
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
			slog.Error("api gemini client init failed", "err", err)
			os.Exit(1)
		}
		enhancer = gem
	} else {
		slog.Info("generative enhancement disabled, no api key configured")
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

	s := httpserver.New()
	api := &httpserver.API{Gateway: gw}
	api.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	handler := httpserver.Logging(httpserver.Metrics(observability.APIRequests)(s.Mux))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}

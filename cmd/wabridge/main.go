package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminclient "github.com/relaydesk/wabridge/internal/admin"
	"github.com/relaydesk/wabridge/internal/ai"
	"github.com/relaydesk/wabridge/internal/api/router"
	"github.com/relaydesk/wabridge/internal/bridge"
	appconfig "github.com/relaydesk/wabridge/internal/config"
	"github.com/relaydesk/wabridge/internal/control"
	"github.com/relaydesk/wabridge/internal/creds"
	"github.com/relaydesk/wabridge/internal/observability/metrics"
	"github.com/relaydesk/wabridge/internal/proc"
	"github.com/relaydesk/wabridge/internal/session"
	"github.com/relaydesk/wabridge/internal/session/engine"
	"github.com/relaydesk/wabridge/internal/state"
	"github.com/relaydesk/wabridge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wabridge",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	lock, err := proc.Acquire(filepath.Join(cfg.StateDir, "wabridge.lock"))
	if err != nil {
		logger.Error("failed to acquire singleton lock", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("lock release failed", "error", err)
		}
	}()

	store, err := creds.NewStore(filepath.Join(cfg.StateDir, "session"), logger.Component("creds"))
	if err != nil {
		logger.Error("failed to open credential store", "error", err)
		os.Exit(1)
	}

	runtime := state.NewRuntime(cfg.AdminURL, cfg.APIKey)
	bridgeMetrics := metrics.NewBridgeMetrics(prometheus.DefaultRegisterer)

	admin := adminclient.NewClient(runtime.Linkage, cfg.AdminTimeout, logger.Component("admin"))
	refresher := adminclient.NewRefresher(admin, runtime, logger.Component("admin"))
	completer := ai.NewClient(cfg.AIBaseURL, cfg.AITimeout, logger.Component("ai"))

	manager := session.NewManager(session.ManagerConfig{
		ReconnectDelay: cfg.ReconnectDelay,
		ResetDelay:     cfg.ResetDelay,
		SettleDelay:    cfg.SettleDelay,
	}, session.ManagerDeps{
		Store:     store,
		Factory:   engine.NewFactory(cfg.EngineURL, logger.Component("engine")),
		Runtime:   runtime,
		Versions:  session.NewHTTPVersionSource(cfg.EngineVersionURL),
		Refresher: refresher,
		Metrics:   bridgeMetrics,
		Logger:    logger.Component("session"),
	})

	dispatcher := bridge.NewDispatcher(manager, admin, completer, runtime, bridgeMetrics, logger.Component("bridge"))
	manager.SetBatchHandler(dispatcher)

	controlHandler := control.NewHandler(runtime, manager, refresher, admin, bridgeMetrics, logger.Component("control"))

	r := router.New(&router.Config{
		Logger:         logger,
		ControlHandler: controlHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	manager.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("wabridge stopped")
}

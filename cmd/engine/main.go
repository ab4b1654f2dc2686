// Package main is the entry point for the WalletPulse tracking engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/walletpulse/engine/internal/alert"
	"github.com/walletpulse/engine/internal/chaindata"
	"github.com/walletpulse/engine/internal/classify"
	"github.com/walletpulse/engine/internal/config"
	"github.com/walletpulse/engine/internal/flow"
	"github.com/walletpulse/engine/internal/metrics"
	"github.com/walletpulse/engine/internal/notify"
	"github.com/walletpulse/engine/internal/price"
	"github.com/walletpulse/engine/internal/registry"
	"github.com/walletpulse/engine/internal/storage"
	"github.com/walletpulse/engine/internal/stream"
	"github.com/walletpulse/engine/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("walletpulse starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"moralis_base_url", cfg.MoralisBaseURL,
		"moralis_key", cfg.MaskedMoralisKey(),
		"alchemy_key", cfg.MaskedAlchemyKey(),
		"solana_rpc_url", cfg.SolanaRPCURL,
		"alert_threshold_usd", cfg.AlertThresholdUSD,
		"fetch_interval", cfg.FetchInterval,
		"redis_enabled", cfg.RedisEnabled,
		"db_host", cfg.DBHost,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Price lookups, optionally backed by Redis
	var priceCache price.Cache = price.NoOpCache{}
	if cfg.RedisEnabled {
		redisCache, err := price.NewRedisCache(ctx, price.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.PriceCacheTTL,
		})
		if err != nil {
			slog.Warn("redis_unavailable", "error", err)
		} else {
			priceCache = redisCache
			slog.Info("redis_connected", "address", cfg.RedisAddress)
		}
	}
	defer priceCache.Close()
	prices := price.NewService(priceCache)

	classifier, err := classify.New(cfg.Routers, prices)
	if err != nil {
		slog.Error("failed to build classifier", "error", err)
		os.Exit(1)
	}

	// Core pipeline
	bus := registry.NewBus()
	flows := flow.NewAggregator()
	alerts := alert.NewEngine(cfg.AlertThresholdUSD)
	reg := registry.New(bus, flows, alerts)

	// Pipeline metrics observe every registry mutation through the sink
	pipelineMetrics := metrics.NewTracker()
	sinks := registry.MultiSink{pipelineMetrics}

	// Optional persistence
	if cfg.DBHost != "" {
		db, err := storage.Open(storage.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
		})
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		sinks = append(sinks, db)
	}
	reg.SetSink(sinks)

	// Chain data clients
	clients := []chaindata.Client{
		chaindata.NewMoralisClient(cfg.MoralisAPIKey, cfg.MoralisBaseURL),
		chaindata.NewSolanaClient(cfg.SolanaRPCURL),
	}

	streams := stream.NewManager(cfg.AlchemyAPIKey, cfg.Routers, classifier, reg)
	svc := tracker.NewService(reg, flows, alerts, classifier, clients, streams)

	// Optional Telegram delivery
	notifier := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatIDs)
	if notifier.IsConfigured() {
		notifier.Attach(ctx, bus)
		defer notifier.Detach()
		slog.Info("telegram_notifier_attached", "chats", len(cfg.TelegramChatIDs))
	}

	svc.StartMonitoring(ctx)

	// Periodic historical refresh
	go func() {
		ticker := time.NewTicker(cfg.FetchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				svc.FetchAllTrackerData(ctx)
				slog.Info("fetch_cycle_complete", "duration", time.Since(start))
			}
		}
	}()

	// Periodic metrics report
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := pipelineMetrics.Snapshot()
				slog.Info("metrics_report",
					"trackers", snap.TrackersActive,
					"events_total", snap.EventsTotal,
					"alerts_total", snap.AlertsTotal,
					"event_rate", snap.EventRate,
					"stream_connections", streams.ActiveConnections(),
					"uptime", snap.Uptime,
				)
			}
		}
	}()

	slog.Info("engine_started",
		"status", "tracking wallets",
		"chains_with_routers", len(cfg.Routers),
	)

	sig := <-sigChan
	slog.Info("shutdown_signal_received", "signal", sig.String())

	cancel()
	svc.StopMonitoring()

	slog.Info("shutdown_complete")
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

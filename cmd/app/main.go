package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Z1Code/gastrocloud-sub000/internal/bot"
	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/cache"
	"github.com/Z1Code/gastrocloud-sub000/internal/config"
	"github.com/Z1Code/gastrocloud-sub000/internal/httpserver"
	"github.com/Z1Code/gastrocloud-sub000/internal/ingest"
	"github.com/Z1Code/gastrocloud-sub000/internal/kds"
	"github.com/Z1Code/gastrocloud-sub000/internal/logging"
	"github.com/Z1Code/gastrocloud-sub000/internal/metrics"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
	"github.com/Z1Code/gastrocloud-sub000/internal/secrets"
	"github.com/Z1Code/gastrocloud-sub000/internal/wa"
	"github.com/Z1Code/gastrocloud-sub000/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting order intake service", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	store, err := repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		// Redis only backs caches and dedupe fast paths; degrade, don't die.
		logger.Warn("redis unreachable, continuing without cache", "error", err)
	}

	box, err := secrets.NewBox(cfg.SecretsKey)
	if err != nil {
		logger.Error("invalid secrets key", "error", err)
		os.Exit(1)
	}

	hub := broadcast.NewHub(logger, metricRegistry, 0)
	catalog := order.NewCatalog(store, redisClient, cfg.CatalogCacheTTL, logger)
	orders := order.NewService(store, catalog, hub, redisClient, metricRegistry, logger, order.ServiceConfig{
		DedupeWindow: cfg.ChatDedupeWindow,
	})

	resolver := ingest.NewResolver(store, box, logger)

	waClient, err := wa.New(ctx, wa.Config{
		StorePath: cfg.WhatsAppStorePath,
		LogLevel:  cfg.WhatsAppLogLevel,
	}, logger)
	if err != nil {
		logger.Error("whatsapp client init failed", "error", err)
		os.Exit(1)
	}
	defer waClient.Close()

	engine := bot.NewEngine(store, catalog, orders, waClient, metricRegistry, logger, bot.EngineConfig{
		IdleReset: cfg.SessionIdleReset,
	})
	waClient.SetInboundHandler(ingest.NewChatRouter(resolver, engine, metricRegistry, logger))

	if err := waClient.Start(ctx); err != nil {
		logger.Error("whatsapp client start failed", "error", err)
		os.Exit(1)
	}

	server := httpserver.New(httpserver.Config{
		Addr:      cfg.HTTPListenAddr,
		Rappi:     ingest.NewRappiWebhook(logger, metricRegistry, resolver, orders),
		PedidosYa: ingest.NewPedidosYaWebhook(logger, metricRegistry, resolver, orders),
		KDS: kds.NewHandler(orders, hub, kds.Thresholds{
			WarningBelow:  cfg.KDSWarningBelow,
			CriticalBelow: cfg.KDSCriticalBelow,
		}, logger),
		Store: store,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

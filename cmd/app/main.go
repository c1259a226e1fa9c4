package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partner-bot/internal/cache"
	"partner-bot/internal/config"
	"partner-bot/internal/httpserver"
	"partner-bot/internal/logging"
	"partner-bot/internal/metrics"
	"partner-bot/internal/notify"
	"partner-bot/internal/referral"
	"partner-bot/internal/store"
	"partner-bot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	logger.Info("starting partner-bot", "env", cfg.AppEnv, "db_driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var st store.Store
	switch cfg.DBDriver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	case "sqlite":
		st, err = store.NewSQLite(ctx, cfg.SQLitePath, logger)
	default:
		st = store.NewMemory()
	}
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed, chain cache degraded", "error", err)
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" {
		notifier = notify.NewTelegram(notify.TelegramConfig{
			BaseURL: cfg.TelegramAPIBaseURL,
			Token:   cfg.TelegramBotToken,
			Timeout: cfg.TelegramTimeout,
		}, logger, metricRegistry)
	} else {
		logger.Warn("no telegram bot token configured, partner notifications disabled")
	}

	activation := referral.NewActivationManager(st, logger, metricRegistry, referral.ActivationConfig{
		PurchaseThreshold: cfg.ActivationThreshold,
		ActivationMonths:  cfg.ActivationMonths,
	})
	resolver := referral.NewResolver(st, redisClient, cfg.ChainCacheTTL, logger)
	ledger := referral.NewLedger(st, logger, metricRegistry)
	distributor := referral.NewDistributor(st, resolver, activation, ledger, notifier, metricRegistry, logger)
	signup := referral.NewSignupService(st, resolver, logger)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Store:          st,
		Distributor:    distributor,
		Activation:     activation,
		Signup:         signup,
		BotUsername:    cfg.TelegramBotUsername,
		DefaultProgram: store.ProgramType(cfg.DefaultProgramType),
	}, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

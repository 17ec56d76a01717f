package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripledger/internal/account"
	"tripledger/internal/booking"
	"tripledger/internal/config"
	"tripledger/internal/db"
	"tripledger/internal/logger"
	"tripledger/internal/notify"
	"tripledger/internal/server"
	"tripledger/internal/store"
	boltstore "tripledger/internal/store/bolt"
	"tripledger/internal/store/postgres"
	"tripledger/internal/transaction"

	"github.com/redis/go-redis/v9"
)

// @title Trip Ledger API
// @version 1.0
// @description Transaction and balance engine for a travel back office.
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet; fall back to the default one.
		_ = logger.Init("info", "json")
		logger.Fatal("failed to load config", "error", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		_ = logger.Init("info", "json")
		logger.Fatal("failed to init logger", "error", err)
	}
	defer logger.Sync()
	logger.Info("starting tripledger", "store", cfg.StoreDriver, "port", cfg.Port)

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable at startup, alerts and idempotency keys will fail until it returns", "addr", cfg.RedisAddr, "error", err)
	}
	pingCancel()

	alerts := notify.New(rdb, notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.AlertEmailFrom,
		To:   cfg.AlertEmailTo,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go alerts.Start(ctx)

	processor := transaction.NewProcessor(st,
		transaction.WithPolicy(account.Policy{AllowNegativeTill: cfg.AllowNegativeTill}),
		transaction.WithMaxAttempts(cfg.MaxAttempts),
		transaction.WithNotifier(alerts),
	)

	srv := server.New(cfg, server.Deps{
		Store:        st,
		Redis:        rdb,
		Accounts:     account.NewService(st),
		Transactions: processor,
		Bookings:     booking.NewService(st, processor),
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErrChan:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}
	cancel()

	logger.Info("server stopped")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverBolt {
		return boltstore.New(cfg.BoltPath)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		database.Close()
		return nil, err
	}
	logger.Info("migrations completed", "path", cfg.MigrationsPath)
	return postgres.New(database), nil
}

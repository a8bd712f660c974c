package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ewallet/internal/broadcast"
	"ewallet/internal/config"
	"ewallet/internal/db"
	"ewallet/internal/handlers"
	"ewallet/internal/logging"
	"ewallet/internal/services"
	"ewallet/internal/store"
	"ewallet/internal/websocket"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(cfg.AllowedOrigins...)
	var notifier services.BalanceNotifier = hub
	if cfg.RedisAddr != "" {
		client := broadcast.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		relay := broadcast.NewRedisRelay(client, hub, cfg.BalanceChannel, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("balance relay stopped", zap.Error(err))
			}
		}()
		notifier = relay
	}

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	transactions := store.NewTransactionStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	walletService := services.NewWalletService(txRunner, wallets, audit, notifier)
	transactionService := services.NewTransactionService(txRunner, transactions, walletService, logger)
	userService := services.NewUserService(txRunner, users, walletService, audit, cfg.JWTSecret, cfg.TokenTTL)

	handler := handlers.New(cfg, logger, userService, walletService, transactionService, users, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("ewallet API listening", zap.String("addr", server.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}
}

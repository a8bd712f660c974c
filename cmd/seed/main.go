package main

import (
	"context"
	"errors"
	"fmt"

	"ewallet/internal/config"
	"ewallet/internal/db"
	"ewallet/internal/logging"
	"ewallet/internal/models"
	"ewallet/internal/services"
	"ewallet/internal/store"
	"ewallet/internal/websocket"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL, 2)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	txRunner := db.NewTxRunner(database)
	audit := store.NewAuditStore(database)
	wallets := services.NewWalletService(txRunner, store.NewWalletStore(database), audit, websocket.NewHub())
	transactions := services.NewTransactionService(txRunner, store.NewTransactionStore(database), wallets, logger)
	users := services.NewUserService(txRunner, store.NewUserStore(database), wallets, audit, cfg.JWTSecret, cfg.TokenTTL)

	if err := seed(context.Background(), users, wallets, transactions, logger); err != nil {
		if errors.Is(err, services.ErrUserExists) {
			logger.Info("seed user already exists, nothing to do")
			return
		}
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func seed(ctx context.Context, users *services.UserService, wallets *services.WalletService, transactions *services.TransactionService, logger *zap.Logger) error {
	session, err := users.Register(ctx, services.RegisterInput{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
	}, services.RequestMeta{IP: "127.0.0.1", UserAgent: "seed"})
	if err != nil {
		return err
	}
	primary := session.Wallet
	logger.Info("created user", zap.String("user_id", session.User.ID), zap.String("wallet_number", primary.WalletNumber))

	savings, err := wallets.CreateWallet(ctx, session.User.ID, "USD")
	if err != nil {
		return err
	}
	recipient, err := wallets.GetByWalletNumber(ctx, savings.WalletNumber)
	if err != nil {
		return err
	}

	steps := []services.CreateTransactionInput{
		{WalletID: primary.ID, Amount: decimal.NewFromInt(1000), Type: models.TransactionDeposit, Description: describe("Initial deposit")},
		{WalletID: primary.ID, Amount: decimal.NewFromInt(50), Type: models.TransactionWithdrawal, Description: describe("ATM withdrawal")},
		{WalletID: primary.ID, Amount: decimal.NewFromInt(200), Type: models.TransactionTransfer, RecipientWalletID: &recipient.ID, Description: describe(fmt.Sprintf("Transfer to wallet %s", recipient.WalletNumber))},
	}
	for _, step := range steps {
		transaction, err := transactions.Submit(ctx, step)
		if err != nil {
			return err
		}
		if transaction.Status != models.StatusCompleted {
			return fmt.Errorf("seed %s ended %s", transaction.Type, transaction.Status)
		}
		logger.Info("seeded transaction",
			zap.String("type", string(transaction.Type)),
			zap.String("amount", transaction.Amount.StringFixed(2)),
		)
	}
	return nil
}

func describe(text string) *string {
	return &text
}

package handlers

import (
	"context"

	"ewallet/internal/models"
	"ewallet/internal/services"
)

type UserService interface {
	Register(ctx context.Context, input services.RegisterInput, meta services.RequestMeta) (services.Session, error)
	Authenticate(ctx context.Context, identifier, password string, meta services.RequestMeta) (services.Session, error)
	Profile(ctx context.Context, userID string) (models.User, []models.Wallet, error)
	UpdateProfile(ctx context.Context, userID string, update services.ProfileUpdate, meta services.RequestMeta) (models.User, error)
	DeleteUser(ctx context.Context, userID string, meta services.RequestMeta) error
	Activity(ctx context.Context, userID string) ([]models.AuditEntry, error)
}

type WalletService interface {
	ListWallets(ctx context.Context, userID string) ([]models.Wallet, error)
	GetWallet(ctx context.Context, userID, walletID string) (models.Wallet, error)
	FindWallet(ctx context.Context, walletID string) (models.Wallet, error)
	GetByWalletNumber(ctx context.Context, walletNumber string) (models.Wallet, error)
	CreateWallet(ctx context.Context, userID, currency string) (models.Wallet, error)
	DeleteWallet(ctx context.Context, userID, walletID string) error
}

type TransactionService interface {
	Submit(ctx context.Context, input services.CreateTransactionInput) (models.Transaction, error)
	GetTransaction(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	ListByWallet(ctx context.Context, userID, walletID string) ([]models.Transaction, error)
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ewallet/internal/db"
	"ewallet/internal/metrics"
	"ewallet/internal/models"
	"ewallet/internal/store"
	"ewallet/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const processSavepoint = "process_transaction"

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetByID(ctx context.Context, transactionID string) (models.Transaction, error)
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error)
	ListByWallet(ctx context.Context, walletID string) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, tx store.Execer, transactionID string, status models.TransactionStatus) error
}

// TransactionService records transactions as PENDING and settles them
// against the wallet balance engine.
type TransactionService struct {
	txRunner     db.TxRunner
	transactions TransactionStore
	wallets      *WalletService
	logger       *zap.Logger
}

func NewTransactionService(txRunner db.TxRunner, transactions TransactionStore, wallets *WalletService, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		txRunner:     txRunner,
		transactions: transactions,
		wallets:      wallets,
		logger:       logger,
	}
}

type CreateTransactionInput struct {
	WalletID          string
	Amount            decimal.Decimal
	Type              models.TransactionType
	RecipientWalletID *string
	Description       *string
}

func (s *TransactionService) Create(ctx context.Context, input CreateTransactionInput) (models.Transaction, error) {
	if !input.Type.Valid() {
		return models.Transaction{}, validator.ErrInvalidTransactionType
	}
	amount, err := validator.NormalizeAmount(input.Amount)
	if err != nil || !amount.IsPositive() {
		return models.Transaction{}, ErrInvalidAmount
	}
	recipient := input.RecipientWalletID
	if input.Type == models.TransactionTransfer {
		if recipient == nil || *recipient == "" {
			return models.Transaction{}, ErrRecipientRequired
		}
	} else {
		recipient = nil
	}
	now := time.Now().UTC()
	transaction := models.Transaction{
		ID:                uuid.NewString(),
		WalletID:          input.WalletID,
		Amount:            amount,
		Type:              input.Type,
		Status:            models.StatusPending,
		RecipientWalletID: recipient,
		Description:       input.Description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		return s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:                transaction.ID,
			WalletID:          transaction.WalletID,
			Amount:            transaction.Amount,
			Type:              transaction.Type,
			Status:            transaction.Status,
			RecipientWalletID: transaction.RecipientWalletID,
			Description:       transaction.Description,
		})
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return transaction, nil
}

// Process settles a PENDING transaction. The balance effect and the status
// change commit together. It returns nil, nil when the transaction does not
// exist or has already been processed.
//
// Withdrawal and transfer failures are not returned: they leave the balances
// untouched and mark the transaction FAILED.
func (s *TransactionService) Process(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var processed *models.Transaction
	var touched []models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		processed, touched = nil, nil
		record, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Status != models.StatusPending {
			return nil
		}
		op, err := operationFor(record)
		if err != nil {
			return err
		}
		status := models.StatusCompleted
		err = db.WithSavepoint(ctx, tx, processSavepoint, func() error {
			wallets, err := op.apply(ctx, tx, s.wallets)
			touched = wallets
			return err
		})
		if err != nil {
			if !op.absorbsFailure(err) || db.IsRetryable(err) || ctx.Err() != nil {
				return err
			}
			s.logger.Info("transaction failed",
				zap.String("transaction_id", record.ID),
				zap.String("type", string(record.Type)),
				zap.String("wallet_id", record.WalletID),
				zap.Error(err),
			)
			status = models.StatusFailed
			touched = nil
		}
		if err := s.transactions.UpdateStatus(ctx, tx, record.ID, status); err != nil {
			return err
		}
		record.Status = status
		record.UpdatedAt = time.Now().UTC()
		processed = &record
		return nil
	})
	if err != nil {
		return nil, err
	}
	if processed != nil {
		metrics.TransactionsProcessed.WithLabelValues(string(processed.Type), string(processed.Status)).Inc()
	}
	s.wallets.notify(touched...)
	return processed, nil
}

// Submit creates a transaction and processes it immediately.
func (s *TransactionService) Submit(ctx context.Context, input CreateTransactionInput) (models.Transaction, error) {
	created, err := s.Create(ctx, input)
	if err != nil {
		return models.Transaction{}, err
	}
	processed, err := s.Process(ctx, created.ID)
	if err != nil {
		return models.Transaction{}, err
	}
	if processed == nil {
		return models.Transaction{}, ErrTransactionNotPending
	}
	return *processed, nil
}

// GetTransaction returns the transaction if userID owns its wallet or its
// recipient wallet.
func (s *TransactionService) GetTransaction(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	transaction, err := s.transactions.GetByID(ctx, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	walletIDs := []string{transaction.WalletID}
	if transaction.RecipientWalletID != nil {
		walletIDs = append(walletIDs, *transaction.RecipientWalletID)
	}
	for _, walletID := range walletIDs {
		wallet, err := s.wallets.FindWallet(ctx, walletID)
		if errors.Is(err, ErrWalletNotFound) {
			continue
		}
		if err != nil {
			return models.Transaction{}, err
		}
		if wallet.UserID == userID {
			return transaction, nil
		}
	}
	return models.Transaction{}, ErrForbidden
}

func (s *TransactionService) ListByWallet(ctx context.Context, userID, walletID string) ([]models.Transaction, error) {
	if _, err := s.wallets.GetWallet(ctx, userID, walletID); err != nil {
		return nil, err
	}
	return s.transactions.ListByWallet(ctx, walletID)
}

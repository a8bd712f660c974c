package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ewallet/internal/db"
	"ewallet/internal/models"
	"ewallet/internal/money"
	"ewallet/internal/store"
	"ewallet/internal/validator"
	"ewallet/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultCurrency          = "USD"
	maxWalletNumberAttempts  = 10
	maxWalletInsertAttempts  = 3
	walletNumberUpperBound   = 100000000
	walletNumberSavepoint    = "wallet_number"
	walletNumberUniqueConstr = "wallets_wallet_number_key"
)

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, wallet models.Wallet) error
	GetByID(ctx context.Context, walletID string) (models.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, walletID string) (models.Wallet, error)
	GetByWalletNumber(ctx context.Context, walletNumber string) (models.Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]models.Wallet, error)
	WalletNumberExists(ctx context.Context, q store.Getter, walletNumber string) (bool, error)
	UpdateBalance(ctx context.Context, tx store.Execer, walletID string, balance decimal.Decimal) error
	Delete(ctx context.Context, tx store.Execer, walletID string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, input store.AuditInput) error
	ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error)
}

type BalanceNotifier interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

// WalletService owns every balance mutation. Balances only change inside a
// database transaction holding the wallet row lock.
type WalletService struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	audit        AuditStore
	notifier     BalanceNotifier
	randomNumber func() int
}

func NewWalletService(txRunner db.TxRunner, wallets WalletStore, audit AuditStore, notifier BalanceNotifier) *WalletService {
	return &WalletService{
		txRunner: txRunner,
		wallets:  wallets,
		audit:    audit,
		notifier: notifier,
		randomNumber: func() int {
			return rand.Intn(walletNumberUpperBound)
		},
	}
}

func (s *WalletService) ListWallets(ctx context.Context, userID string) ([]models.Wallet, error) {
	return s.wallets.ListByUser(ctx, userID)
}

// GetWallet returns the wallet if userID owns it.
func (s *WalletService) GetWallet(ctx context.Context, userID, walletID string) (models.Wallet, error) {
	wallet, err := s.FindWallet(ctx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	if wallet.UserID != userID {
		return models.Wallet{}, ErrForbidden
	}
	return wallet, nil
}

func (s *WalletService) GetByWalletNumber(ctx context.Context, walletNumber string) (models.Wallet, error) {
	if err := validator.ValidateWalletNumber(walletNumber); err != nil {
		return models.Wallet{}, ErrRecipientNotFound
	}
	wallet, err := s.wallets.GetByWalletNumber(ctx, walletNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrRecipientNotFound
	}
	return wallet, err
}

func (s *WalletService) CreateWallet(ctx context.Context, userID, currency string) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		created, err := s.CreateWalletInTx(ctx, tx, userID, currency)
		if err != nil {
			return err
		}
		wallet = created
		return s.audit.Log(ctx, tx, store.AuditInput{
			ActorID:    userID,
			Action:     "wallet.create",
			EntityType: "wallet",
			EntityID:   created.ID,
			Data: map[string]string{
				"wallet_number": created.WalletNumber,
				"currency":      created.Currency,
			},
		})
	})
	if err != nil {
		return models.Wallet{}, err
	}
	return wallet, nil
}

// CreateWalletInTx inserts an empty wallet for userID as part of the caller's
// transaction. An empty currency defaults to USD.
func (s *WalletService) CreateWalletInTx(ctx context.Context, tx store.Tx, userID, currency string) (models.Wallet, error) {
	if currency == "" {
		currency = defaultCurrency
	}
	code, err := validator.ValidateCurrency(currency)
	if err != nil {
		return models.Wallet{}, err
	}
	for attempt := 1; ; attempt++ {
		number, err := s.GenerateUniqueWalletNumber(ctx, tx)
		if err != nil {
			return models.Wallet{}, err
		}
		now := time.Now().UTC()
		wallet := models.Wallet{
			ID:           uuid.NewString(),
			UserID:       userID,
			WalletNumber: number,
			Balance:      decimal.Zero,
			Currency:     code,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = db.WithSavepoint(ctx, tx, walletNumberSavepoint, func() error {
			return s.wallets.Create(ctx, tx, wallet)
		})
		if err == nil {
			return wallet, nil
		}
		// Another request took the number between the check and the insert.
		if store.IsUniqueViolation(err) && store.ConstraintName(err) == walletNumberUniqueConstr && attempt < maxWalletInsertAttempts {
			continue
		}
		return models.Wallet{}, err
	}
}

// GenerateUniqueWalletNumber draws EW-prefixed 8-digit numbers until one is
// unused, giving up after a fixed number of attempts.
func (s *WalletService) GenerateUniqueWalletNumber(ctx context.Context, q store.Getter) (string, error) {
	for attempt := 0; attempt < maxWalletNumberAttempts; attempt++ {
		number := fmt.Sprintf("EW%08d", s.randomNumber())
		exists, err := s.wallets.WalletNumberExists(ctx, q, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", ErrWalletNumberExhausted
}

func (s *WalletService) DeleteWallet(ctx context.Context, userID, walletID string) error {
	return s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		wallet, err := s.lockWallet(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if wallet.UserID != userID {
			return ErrForbidden
		}
		if err := s.wallets.Delete(ctx, tx, walletID); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, store.AuditInput{
			ActorID:    userID,
			Action:     "wallet.delete",
			EntityType: "wallet",
			EntityID:   walletID,
			Data: map[string]string{
				"wallet_number": wallet.WalletNumber,
				"balance":       money.Format(wallet.Balance),
			},
		})
	})
}

// ApplyDelta adds a signed amount to the wallet balance, rejecting any change
// that would leave it negative.
func (s *WalletService) ApplyDelta(ctx context.Context, walletID string, delta decimal.Decimal) (models.Wallet, error) {
	var updated models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		wallet, err := s.applyDelta(ctx, tx, walletID, delta)
		updated = wallet
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}
	s.notify(updated)
	return updated, nil
}

// Transfer moves amount between two wallets in one database transaction.
func (s *WalletService) Transfer(ctx context.Context, fromWalletID, toWalletID string, amount decimal.Decimal) (models.Wallet, models.Wallet, error) {
	var from, to models.Wallet
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		var err error
		from, to, err = s.transfer(ctx, tx, fromWalletID, toWalletID, amount)
		return err
	})
	if err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	s.notify(from, to)
	return from, to, nil
}

func (s *WalletService) TransferByWalletNumber(ctx context.Context, fromWalletID, toWalletNumber string, amount decimal.Decimal) (models.Wallet, models.Wallet, error) {
	recipient, err := s.GetByWalletNumber(ctx, toWalletNumber)
	if err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	return s.Transfer(ctx, fromWalletID, recipient.ID, amount)
}

func (s *WalletService) applyDelta(ctx context.Context, tx store.Tx, walletID string, delta decimal.Decimal) (models.Wallet, error) {
	if money.CheckRange(delta) != nil {
		return models.Wallet{}, ErrInvalidAmount
	}
	wallet, err := s.lockWallet(ctx, tx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	newBalance := wallet.Balance.Add(money.Round(delta))
	if newBalance.IsNegative() {
		return models.Wallet{}, ErrInsufficientFunds
	}
	if newBalance.GreaterThan(money.MaxAmount) {
		return models.Wallet{}, ErrBalanceLimitExceeded
	}
	if err := s.wallets.UpdateBalance(ctx, tx, walletID, newBalance); err != nil {
		return models.Wallet{}, err
	}
	wallet.Balance = newBalance
	wallet.UpdatedAt = time.Now().UTC()
	return wallet, nil
}

func (s *WalletService) transfer(ctx context.Context, tx store.Tx, fromWalletID, toWalletID string, amount decimal.Decimal) (models.Wallet, models.Wallet, error) {
	amount, err := validator.NormalizeAmount(amount)
	if err != nil || !amount.IsPositive() {
		return models.Wallet{}, models.Wallet{}, ErrInvalidAmount
	}
	if fromWalletID == toWalletID {
		return models.Wallet{}, models.Wallet{}, ErrSameWalletTransfer
	}
	from, to, err := s.lockTwoWallets(ctx, tx, fromWalletID, toWalletID)
	if err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	if from.Currency != to.Currency {
		return models.Wallet{}, models.Wallet{}, ErrCurrencyMismatch
	}
	if from.Balance.LessThan(amount) {
		return models.Wallet{}, models.Wallet{}, ErrInsufficientFunds
	}
	if to.Balance.Add(amount).GreaterThan(money.MaxAmount) {
		return models.Wallet{}, models.Wallet{}, ErrBalanceLimitExceeded
	}
	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	if err := s.wallets.UpdateBalance(ctx, tx, from.ID, from.Balance); err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	if err := s.wallets.UpdateBalance(ctx, tx, to.ID, to.Balance); err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	now := time.Now().UTC()
	from.UpdatedAt, to.UpdatedAt = now, now
	return from, to, nil
}

// lockTwoWallets takes both row locks in id order so concurrent transfers in
// opposite directions cannot deadlock.
func (s *WalletService) lockTwoWallets(ctx context.Context, tx store.Getter, firstID, secondID string) (models.Wallet, models.Wallet, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := s.lockWallet(ctx, tx, leftID)
	if err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	right, err := s.lockWallet(ctx, tx, rightID)
	if err != nil {
		return models.Wallet{}, models.Wallet{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func (s *WalletService) lockWallet(ctx context.Context, tx store.Getter, walletID string) (models.Wallet, error) {
	wallet, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrWalletNotFound
	}
	return wallet, err
}

// FindWallet looks a wallet up without an ownership check.
func (s *WalletService) FindWallet(ctx context.Context, walletID string) (models.Wallet, error) {
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrWalletNotFound
	}
	return wallet, err
}

func (s *WalletService) notify(wallets ...models.Wallet) {
	if s.notifier == nil {
		return
	}
	for _, wallet := range wallets {
		s.notifier.BroadcastBalance(wallet.UserID, websocket.BalanceUpdate{
			WalletID:     wallet.ID,
			WalletNumber: wallet.WalletNumber,
			Balance:      money.Format(wallet.Balance),
			Currency:     wallet.Currency,
		})
	}
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

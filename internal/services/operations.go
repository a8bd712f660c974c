package services

import (
	"context"
	"errors"
	"fmt"

	"ewallet/internal/models"
	"ewallet/internal/store"
	"ewallet/internal/validator"

	"github.com/shopspring/decimal"
)

// operation is the balance effect of one transaction type. The interface is
// closed to this package; operationFor is the only constructor.
type operation interface {
	apply(ctx context.Context, tx store.Tx, engine *WalletService) ([]models.Wallet, error)
	// absorbsFailure reports whether err from apply marks the transaction
	// FAILED instead of aborting processing.
	absorbsFailure(err error) bool
}

type depositOp struct {
	walletID string
	amount   decimal.Decimal
}

func (op depositOp) apply(ctx context.Context, tx store.Tx, engine *WalletService) ([]models.Wallet, error) {
	wallet, err := engine.applyDelta(ctx, tx, op.walletID, op.amount)
	if err != nil {
		return nil, err
	}
	return []models.Wallet{wallet}, nil
}

func (depositOp) absorbsFailure(err error) bool {
	return errors.Is(err, ErrBalanceLimitExceeded)
}

type withdrawalOp struct {
	walletID string
	amount   decimal.Decimal
}

func (op withdrawalOp) apply(ctx context.Context, tx store.Tx, engine *WalletService) ([]models.Wallet, error) {
	wallet, err := engine.applyDelta(ctx, tx, op.walletID, op.amount.Neg())
	if err != nil {
		return nil, err
	}
	return []models.Wallet{wallet}, nil
}

func (withdrawalOp) absorbsFailure(error) bool { return true }

type transferOp struct {
	fromWalletID string
	toWalletID   *string
	amount       decimal.Decimal
}

func (op transferOp) apply(ctx context.Context, tx store.Tx, engine *WalletService) ([]models.Wallet, error) {
	if op.toWalletID == nil || *op.toWalletID == "" {
		return nil, ErrRecipientRequired
	}
	from, to, err := engine.transfer(ctx, tx, op.fromWalletID, *op.toWalletID, op.amount)
	if err != nil {
		return nil, err
	}
	return []models.Wallet{from, to}, nil
}

func (transferOp) absorbsFailure(error) bool { return true }

func operationFor(transaction models.Transaction) (operation, error) {
	switch transaction.Type {
	case models.TransactionDeposit:
		return depositOp{walletID: transaction.WalletID, amount: transaction.Amount}, nil
	case models.TransactionWithdrawal:
		return withdrawalOp{walletID: transaction.WalletID, amount: transaction.Amount}, nil
	case models.TransactionTransfer:
		return transferOp{
			fromWalletID: transaction.WalletID,
			toWalletID:   transaction.RecipientWalletID,
			amount:       transaction.Amount,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", validator.ErrInvalidTransactionType, transaction.Type)
}

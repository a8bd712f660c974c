package store

import (
	"context"
	"database/sql"
	"time"

	"ewallet/internal/models"
	"ewallet/internal/validator"

	"github.com/shopspring/decimal"
)

type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

type walletRow struct {
	ID           string          `db:"id"`
	UserID       string          `db:"user_id"`
	WalletNumber string          `db:"wallet_number"`
	Balance      decimal.Decimal `db:"balance"`
	Currency     string          `db:"currency"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r walletRow) toModel() (models.Wallet, error) {
	if err := validator.ValidateWalletNumber(r.WalletNumber); err != nil {
		return models.Wallet{}, invalidRecord(err, "wallet", "wallet_number", r.WalletNumber)
	}
	if _, err := validator.ValidateCurrency(r.Currency); err != nil {
		return models.Wallet{}, invalidRecord(err, "wallet", "currency", r.Currency)
	}
	if r.Balance.IsNegative() {
		return models.Wallet{}, invalidRecord(validator.ErrInvalidAmount, "wallet", "balance", r.Balance.String())
	}
	return models.Wallet{
		ID:           r.ID,
		UserID:       r.UserID,
		WalletNumber: r.WalletNumber,
		Balance:      r.Balance,
		Currency:     r.Currency,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

const walletColumns = `id, user_id, wallet_number, balance, currency, created_at, updated_at`

func (s *WalletStore) Create(ctx context.Context, tx Execer, wallet models.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, wallet_number, balance, currency)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query, wallet.ID, wallet.UserID, wallet.WalletNumber, wallet.Balance, wallet.Currency)
	return err
}

func (s *WalletStore) GetByID(ctx context.Context, walletID string) (models.Wallet, error) {
	id, ok := uuidArg(walletID)
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	var row walletRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id); err != nil {
		return models.Wallet{}, err
	}
	return row.toModel()
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, walletID string) (models.Wallet, error) {
	id, ok := uuidArg(walletID)
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	var row walletRow
	err := tx.GetContext(ctx, &row, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return models.Wallet{}, err
	}
	return row.toModel()
}

func (s *WalletStore) GetByWalletNumber(ctx context.Context, walletNumber string) (models.Wallet, error) {
	var row walletRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+walletColumns+` FROM wallets WHERE wallet_number = $1`, walletNumber); err != nil {
		return models.Wallet{}, err
	}
	return row.toModel()
}

func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]models.Wallet, error) {
	var rows []walletRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	wallets := make([]models.Wallet, 0, len(rows))
	for _, row := range rows {
		wallet, err := row.toModel()
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, nil
}

func (s *WalletStore) WalletNumberExists(ctx context.Context, q Getter, walletNumber string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM wallets WHERE wallet_number = $1)`, walletNumber)
	return exists, err
}

func (s *WalletStore) UpdateBalance(ctx context.Context, tx Execer, walletID string, balance decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, walletID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *WalletStore) Delete(ctx context.Context, tx Execer, walletID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

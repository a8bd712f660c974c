package store

import (
	"context"
	"database/sql"
	"time"

	"ewallet/internal/models"
	"ewallet/internal/validator"

	"github.com/shopspring/decimal"
)

type TransactionStore struct {
	db DB
}

type transactionRow struct {
	ID                string          `db:"id"`
	WalletID          string          `db:"wallet_id"`
	Amount            decimal.Decimal `db:"amount"`
	Type              string          `db:"type"`
	Status            string          `db:"status"`
	RecipientWalletID *string         `db:"recipient_wallet_id"`
	Description       *string         `db:"description"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r transactionRow) toModel() (models.Transaction, error) {
	txType := models.TransactionType(r.Type)
	if !txType.Valid() {
		return models.Transaction{}, invalidRecord(validator.ErrInvalidTransactionType, "transaction", "type", r.Type)
	}
	status := models.TransactionStatus(r.Status)
	if !status.Valid() {
		return models.Transaction{}, invalidRecord(validator.ErrInvalidTransactionStatus, "transaction", "status", r.Status)
	}
	return models.Transaction{
		ID:                r.ID,
		WalletID:          r.WalletID,
		Amount:            r.Amount,
		Type:              txType,
		Status:            status,
		RecipientWalletID: r.RecipientWalletID,
		Description:       r.Description,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

type TransactionInput struct {
	ID                string
	WalletID          string
	Amount            decimal.Decimal
	Type              models.TransactionType
	Status            models.TransactionStatus
	RecipientWalletID *string
	Description       *string
}

const transactionColumns = `id, wallet_id, amount, type, status, recipient_wallet_id, description, created_at, updated_at`

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, wallet_id, amount, type, status, recipient_wallet_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.WalletID, input.Amount, string(input.Type), string(input.Status),
		input.RecipientWalletID, input.Description,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	id, ok := uuidArg(transactionID)
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	var row transactionRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id); err != nil {
		return models.Transaction{}, err
	}
	return row.toModel()
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (models.Transaction, error) {
	id, ok := uuidArg(transactionID)
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	var row transactionRow
	err := tx.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return models.Transaction{}, err
	}
	return row.toModel()
}

// ListByWallet returns transactions where the wallet is the subject or the
// recipient, newest first.
func (s *TransactionStore) ListByWallet(ctx context.Context, walletID string) ([]models.Transaction, error) {
	id, ok := uuidArg(walletID)
	if !ok {
		return []models.Transaction{}, nil
	}
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = $1 OR recipient_wallet_id = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	transactions := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := row.toModel()
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

// UpdateStatus moves a PENDING transaction to status. It returns
// sql.ErrNoRows when the row is missing or already terminal.
func (s *TransactionStore) UpdateStatus(ctx context.Context, tx Execer, transactionID string, status models.TransactionStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'PENDING'
	`, string(status), transactionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

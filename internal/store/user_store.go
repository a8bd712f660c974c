package store

import (
	"context"
	"database/sql"
	"time"

	"ewallet/internal/models"
	"ewallet/internal/validator"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) toModel() (models.User, error) {
	if r.ID == "" {
		return models.User{}, invalidRecord(validator.ErrInvalidID, "user", "id", r.ID)
	}
	return models.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// UserUpdate carries the fields to change; nil leaves a column untouched.
type UserUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
}

const userColumns = `id, username, email, password_hash, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, tx Execer, id, username, email, passwordHash string) error {
	query := `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query, id, username, email, passwordHash)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	id, ok := uuidArg(userID)
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) Update(ctx context.Context, tx Execer, userID string, update UserUpdate) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET username = COALESCE($2, username),
		    email = COALESCE($3, email),
		    password_hash = COALESCE($4, password_hash),
		    updated_at = NOW()
		WHERE id = $1
	`, userID, update.Username, update.Email, update.PasswordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes the user; wallets and their transactions cascade.
func (s *UserStore) Delete(ctx context.Context, tx Execer, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg string) (models.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		return models.User{}, err
	}
	return row.toModel()
}

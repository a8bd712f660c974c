package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ewallet/internal/auth"
	"ewallet/internal/db"
	"ewallet/internal/models"
	"ewallet/internal/store"
	"ewallet/internal/validator"

	"github.com/google/uuid"
)

const activityLimit = 50

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Update(ctx context.Context, tx store.Execer, userID string, update store.UserUpdate) error
	Delete(ctx context.Context, tx store.Execer, userID string) error
}

type UserService struct {
	txRunner  db.TxRunner
	users     UserStore
	wallets   *WalletService
	audit     AuditStore
	jwtSecret string
	tokenTTL  time.Duration
}

func NewUserService(txRunner db.TxRunner, users UserStore, wallets *WalletService, audit AuditStore, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		txRunner:  txRunner,
		users:     users,
		wallets:   wallets,
		audit:     audit,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// RequestMeta describes the client for audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type Session struct {
	Token  string
	User   models.User
	Wallet *models.Wallet
}

type ProfileUpdate struct {
	Username *string
	Email    *string
	Password *string
}

// Register creates the user and a USD wallet in one transaction.
func (s *UserService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (Session, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if err := validator.ValidateUsername(input.Username); err != nil {
		return Session{}, err
	}
	if err := validator.ValidateEmail(input.Email); err != nil {
		return Session{}, err
	}
	if err := validator.ValidatePassword(input.Password); err != nil {
		return Session{}, err
	}
	if err := s.ensureAvailable(ctx, "", &input.Username, &input.Email); err != nil {
		return Session{}, err
	}
	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return Session{}, err
	}
	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var wallet models.Wallet
	err = s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		if err := s.users.Create(ctx, tx, user.ID, user.Username, user.Email, user.PasswordHash); err != nil {
			return err
		}
		created, err := s.wallets.CreateWalletInTx(ctx, tx, user.ID, defaultCurrency)
		if err != nil {
			return err
		}
		wallet = created
		return s.logEvent(ctx, tx, user.ID, "register", "user", user.ID, meta)
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Session{}, ErrUserExists
		}
		return Session{}, err
	}
	token, err := auth.GenerateToken(s.jwtSecret, user.ID, user.Username, s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user, Wallet: &wallet}, nil
}

// Authenticate accepts either the username or the email as identifier.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string, meta RequestMeta) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	var user models.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		return s.logEvent(ctx, tx, user.ID, "login", "user", user.ID, meta)
	}); err != nil {
		return Session{}, err
	}
	token, err := auth.GenerateToken(s.jwtSecret, user.ID, user.Username, s.tokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) Profile(ctx context.Context, userID string) (models.User, []models.Wallet, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, nil, err
	}
	wallets, err := s.wallets.ListWallets(ctx, userID)
	if err != nil {
		return models.User{}, nil, err
	}
	return user, wallets, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate, meta RequestMeta) (models.User, error) {
	var changes store.UserUpdate
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if err := validator.ValidateUsername(username); err != nil {
			return models.User{}, err
		}
		changes.Username = &username
	}
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if err := validator.ValidateEmail(email); err != nil {
			return models.User{}, err
		}
		changes.Email = &email
	}
	if update.Password != nil {
		if err := validator.ValidatePassword(*update.Password); err != nil {
			return models.User{}, err
		}
		hash, err := auth.HashPassword(*update.Password)
		if err != nil {
			return models.User{}, err
		}
		changes.PasswordHash = &hash
	}
	if err := s.ensureAvailable(ctx, userID, changes.Username, changes.Email); err != nil {
		return models.User{}, err
	}
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		if err := s.users.Update(ctx, tx, userID, changes); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, userID, "user.update", "user", userID, meta)
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.User{}, ErrUserNotFound
	case store.IsUniqueViolation(err):
		return models.User{}, ErrUserExists
	case err != nil:
		return models.User{}, err
	}
	return s.GetUser(ctx, userID)
}

// DeleteUser removes the user together with its wallets and their transactions.
func (s *UserService) DeleteUser(ctx context.Context, userID string, meta RequestMeta) error {
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		if err := s.logEvent(ctx, tx, userID, "user.delete", "user", userID, meta); err != nil {
			return err
		}
		return s.users.Delete(ctx, tx, userID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

func (s *UserService) Activity(ctx context.Context, userID string) ([]models.AuditEntry, error) {
	return s.audit.ListByActor(ctx, userID, activityLimit)
}

// ensureAvailable fails with ErrUserExists when another user already holds
// the username or email.
func (s *UserService) ensureAvailable(ctx context.Context, userID string, username, email *string) error {
	if username != nil {
		existing, err := s.users.GetByUsername(ctx, *username)
		if err == nil && existing.ID != userID {
			return ErrUserExists
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}
	if email != nil {
		existing, err := s.users.GetByEmail(ctx, *email)
		if err == nil && existing.ID != userID {
			return ErrUserExists
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}
	return nil
}

func (s *UserService) logEvent(ctx context.Context, tx store.Execer, userID, action, entityType, entityID string, meta RequestMeta) error {
	return s.audit.Log(ctx, tx, store.AuditInput{
		ActorID:    userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Data: map[string]string{
			"ip":         meta.IP,
			"user_agent": meta.UserAgent,
		},
	})
}

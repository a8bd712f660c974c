package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"ewallet/internal/auth"
	"ewallet/internal/config"
	"ewallet/internal/models"
	"ewallet/internal/services"
	"ewallet/internal/websocket"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubUserService struct {
	registerFn      func(ctx context.Context, input services.RegisterInput, meta services.RequestMeta) (services.Session, error)
	authenticateFn  func(ctx context.Context, identifier, password string, meta services.RequestMeta) (services.Session, error)
	profileFn       func(ctx context.Context, userID string) (models.User, []models.Wallet, error)
	updateProfileFn func(ctx context.Context, userID string, update services.ProfileUpdate, meta services.RequestMeta) (models.User, error)
	deleteUserFn    func(ctx context.Context, userID string, meta services.RequestMeta) error
	activityFn      func(ctx context.Context, userID string) ([]models.AuditEntry, error)
}

func (s stubUserService) Register(ctx context.Context, input services.RegisterInput, meta services.RequestMeta) (services.Session, error) {
	if s.registerFn == nil {
		return services.Session{}, nil
	}
	return s.registerFn(ctx, input, meta)
}

func (s stubUserService) Authenticate(ctx context.Context, identifier, password string, meta services.RequestMeta) (services.Session, error) {
	if s.authenticateFn == nil {
		return services.Session{}, nil
	}
	return s.authenticateFn(ctx, identifier, password, meta)
}

func (s stubUserService) Profile(ctx context.Context, userID string) (models.User, []models.Wallet, error) {
	if s.profileFn == nil {
		return models.User{}, nil, nil
	}
	return s.profileFn(ctx, userID)
}

func (s stubUserService) UpdateProfile(ctx context.Context, userID string, update services.ProfileUpdate, meta services.RequestMeta) (models.User, error) {
	if s.updateProfileFn == nil {
		return models.User{}, nil
	}
	return s.updateProfileFn(ctx, userID, update, meta)
}

func (s stubUserService) DeleteUser(ctx context.Context, userID string, meta services.RequestMeta) error {
	if s.deleteUserFn == nil {
		return nil
	}
	return s.deleteUserFn(ctx, userID, meta)
}

func (s stubUserService) Activity(ctx context.Context, userID string) ([]models.AuditEntry, error) {
	if s.activityFn == nil {
		return nil, nil
	}
	return s.activityFn(ctx, userID)
}

// stubWalletService serves wallets from a fixed set with the real ownership
// rules.
type stubWalletService struct {
	wallets  map[string]models.Wallet
	listFn   func(ctx context.Context, userID string) ([]models.Wallet, error)
	createFn func(ctx context.Context, userID, currency string) (models.Wallet, error)
	deleteFn func(ctx context.Context, userID, walletID string) error
}

func (s stubWalletService) ListWallets(ctx context.Context, userID string) ([]models.Wallet, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

func (s stubWalletService) GetWallet(ctx context.Context, userID, walletID string) (models.Wallet, error) {
	wallet, err := s.FindWallet(ctx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	if wallet.UserID != userID {
		return models.Wallet{}, services.ErrForbidden
	}
	return wallet, nil
}

func (s stubWalletService) FindWallet(ctx context.Context, walletID string) (models.Wallet, error) {
	wallet, ok := s.wallets[walletID]
	if !ok {
		return models.Wallet{}, services.ErrWalletNotFound
	}
	return wallet, nil
}

func (s stubWalletService) GetByWalletNumber(ctx context.Context, walletNumber string) (models.Wallet, error) {
	for _, wallet := range s.wallets {
		if wallet.WalletNumber == walletNumber {
			return wallet, nil
		}
	}
	return models.Wallet{}, services.ErrRecipientNotFound
}

func (s stubWalletService) CreateWallet(ctx context.Context, userID, currency string) (models.Wallet, error) {
	if s.createFn == nil {
		return models.Wallet{}, nil
	}
	return s.createFn(ctx, userID, currency)
}

func (s stubWalletService) DeleteWallet(ctx context.Context, userID, walletID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID, walletID)
}

type stubTransactionService struct {
	submitFn func(ctx context.Context, input services.CreateTransactionInput) (models.Transaction, error)
	getFn    func(ctx context.Context, userID, transactionID string) (models.Transaction, error)
	listFn   func(ctx context.Context, userID, walletID string) ([]models.Transaction, error)
}

func (s stubTransactionService) Submit(ctx context.Context, input services.CreateTransactionInput) (models.Transaction, error) {
	if s.submitFn == nil {
		return models.Transaction{
			ID:                "tx-1",
			WalletID:          input.WalletID,
			Amount:            input.Amount,
			Type:              input.Type,
			Status:            models.StatusCompleted,
			RecipientWalletID: input.RecipientWalletID,
			Description:       input.Description,
		}, nil
	}
	return s.submitFn(ctx, input)
}

func (s stubTransactionService) GetTransaction(ctx context.Context, userID, transactionID string) (models.Transaction, error) {
	if s.getFn == nil {
		return models.Transaction{}, nil
	}
	return s.getFn(ctx, userID, transactionID)
}

func (s stubTransactionService) ListByWallet(ctx context.Context, userID, walletID string) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID, walletID)
}

type stubUserLookup struct{}

func (stubUserLookup) GetByID(ctx context.Context, userID string) (models.User, error) {
	if userID == "ghost" {
		return models.User{}, sql.ErrNoRows
	}
	return models.User{ID: userID, Username: userID}, nil
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: []string{"*"},
	}
}

func newTestHandler(users UserService, wallets WalletService, transactions TransactionService) *Handler {
	return New(testConfig(), zap.NewNop(), users, wallets, transactions, stubUserLookup{}, websocket.NewHub())
}

func testWallets() stubWalletService {
	eur := testWallet("w-eur", "user-1", "EW00000003", "5.00")
	eur.Currency = "EUR"
	return stubWalletService{wallets: map[string]models.Wallet{
		"w-1":   testWallet("w-1", "user-1", "EW00000001", "100.00"),
		"w-2":   testWallet("w-2", "user-2", "EW00000002", "20.00"),
		"w-eur": eur,
	}}
}

func testWallet(id, userID, number, balance string) models.Wallet {
	return models.Wallet{
		ID:           id,
		UserID:       userID,
		WalletNumber: number,
		Balance:      decimal.RequireFromString(balance),
		Currency:     "USD",
	}
}

// serve runs a request through the full router, authenticated as userID
// unless userID is empty.
func serve(t *testing.T, handler *Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details string          `json:"details"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var body testEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) testEnvelope {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	return decodeEnvelope(t, rr)
}

func stringPtr(value string) *string {
	return &value
}

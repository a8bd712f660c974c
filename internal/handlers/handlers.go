package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"ewallet/internal/models"
	"ewallet/internal/money"
	"ewallet/internal/services"
	"ewallet/internal/store"
	"ewallet/internal/validator"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Error: message})
}

// respondServiceError maps domain errors onto status codes. Anything it does
// not recognise is logged and reported as a 500, as are rows the store
// refused to load.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		h.respondInternalError(w, r, err)
	case validator.IsValidationError(err),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrBalanceLimitExceeded),
		errors.Is(err, services.ErrSameWalletTransfer),
		errors.Is(err, services.ErrCurrencyMismatch),
		errors.Is(err, services.ErrRecipientRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrWalletNotFound),
		errors.Is(err, services.ErrTransactionNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrRecipientNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUserExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.respondInternalError(w, r, err)
	}
}

func (h *Handler) respondInternalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	body := envelope{Error: "internal server error"}
	if !h.cfg.IsProduction() {
		body.Details = err.Error()
	}
	respondJSON(w, http.StatusInternalServerError, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

// parseAmount accepts a positive JSON number and rounds it to cents.
func parseAmount(raw json.Number) (decimal.Decimal, error) {
	amount, err := money.Parse(raw.String())
	if err != nil {
		return decimal.Zero, services.ErrInvalidAmount
	}
	amount, err = validator.NormalizeAmount(amount)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, services.ErrInvalidAmount
	}
	return amount, nil
}

func requestMeta(r *http.Request) services.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return services.RequestMeta{IP: ip, UserAgent: r.UserAgent()}
}

func moneyValue(amount decimal.Decimal) json.Number {
	return json.Number(money.Format(amount))
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func presentUser(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type walletResponse struct {
	ID           string      `json:"id"`
	UserID       string      `json:"userId"`
	WalletNumber string      `json:"walletNumber"`
	Balance      json.Number `json:"balance"`
	Currency     string      `json:"currency"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func presentWallet(wallet models.Wallet) walletResponse {
	return walletResponse{
		ID:           wallet.ID,
		UserID:       wallet.UserID,
		WalletNumber: wallet.WalletNumber,
		Balance:      moneyValue(wallet.Balance),
		Currency:     wallet.Currency,
		CreatedAt:    wallet.CreatedAt,
		UpdatedAt:    wallet.UpdatedAt,
	}
}

func presentWallets(wallets []models.Wallet) []walletResponse {
	out := make([]walletResponse, 0, len(wallets))
	for _, wallet := range wallets {
		out = append(out, presentWallet(wallet))
	}
	return out
}

type transactionResponse struct {
	ID                string                   `json:"id"`
	WalletID          string                   `json:"walletId"`
	Amount            json.Number              `json:"amount"`
	Type              models.TransactionType   `json:"type"`
	Status            models.TransactionStatus `json:"status"`
	RecipientWalletID *string                  `json:"recipientWalletId,omitempty"`
	Description       *string                  `json:"description,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

func presentTransaction(transaction models.Transaction) transactionResponse {
	return transactionResponse{
		ID:                transaction.ID,
		WalletID:          transaction.WalletID,
		Amount:            moneyValue(transaction.Amount),
		Type:              transaction.Type,
		Status:            transaction.Status,
		RecipientWalletID: transaction.RecipientWalletID,
		Description:       transaction.Description,
		CreatedAt:         transaction.CreatedAt,
		UpdatedAt:         transaction.UpdatedAt,
	}
}

func presentTransactions(transactions []models.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(transactions))
	for _, transaction := range transactions {
		out = append(out, presentTransaction(transaction))
	}
	return out
}

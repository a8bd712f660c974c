package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ewallet/internal/middleware"
	"ewallet/internal/models"
	"ewallet/internal/money"
	"ewallet/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallets, err := h.wallets.ListWallets(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, presentWallets(wallets))
}

type createWalletRequest struct {
	Currency string `json:"currency"`
}

func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createWalletRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	wallet, err := h.wallets.CreateWallet(r.Context(), userID, req.Currency)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, presentWallet(wallet))
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, presentWallet(wallet))
}

func (h *Handler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.wallets.DeleteWallet(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"message": "wallet deleted"})
}

type amountRequest struct {
	Amount      json.Number `json:"amount"`
	Description *string     `json:"description"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, models.TransactionDeposit, "Deposit to wallet")
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, models.TransactionWithdrawal, "Withdrawal from wallet")
}

// moveFunds handles the single-wallet deposit and withdraw endpoints.
func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, txType models.TransactionType, defaultDescription string) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if txType == models.TransactionWithdrawal && wallet.Balance.LessThan(amount) {
		h.respondServiceError(w, r, services.ErrInsufficientFunds)
		return
	}
	if txType == models.TransactionDeposit && wallet.Balance.Add(amount).GreaterThan(money.MaxAmount) {
		h.respondServiceError(w, r, services.ErrBalanceLimitExceeded)
		return
	}
	transaction, err := h.transactions.Submit(r.Context(), services.CreateTransactionInput{
		WalletID:    wallet.ID,
		Amount:      amount,
		Type:        txType,
		Description: describe(req.Description, defaultDescription),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if transaction.Status == models.StatusFailed {
		if txType == models.TransactionDeposit {
			err = services.ErrBalanceLimitExceeded
		} else {
			err = services.ErrInsufficientFunds
		}
		h.respondServiceError(w, r, err)
		return
	}
	updated, err := h.wallets.GetWallet(r.Context(), userID, wallet.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"wallet":      presentWallet(updated),
		"transaction": presentTransaction(transaction),
	})
}

type transferRequest struct {
	FromWalletID string      `json:"fromWalletId"`
	ToWalletID   string      `json:"toWalletId"`
	Amount       json.Number `json:"amount"`
	Description  *string     `json:"description"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FromWalletID == "" || req.ToWalletID == "" || req.Amount == "" {
		respondError(w, http.StatusBadRequest, "missing required fields: fromWalletId, toWalletId, amount")
		return
	}
	from, err := h.wallets.GetWallet(r.Context(), userID, req.FromWalletID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	to, err := h.wallets.FindWallet(r.Context(), req.ToWalletID)
	if errors.Is(err, services.ErrWalletNotFound) {
		err = services.ErrRecipientNotFound
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.transfer(w, r, userID, from, to, req.Amount, req.Description)
}

type transferByNumberRequest struct {
	FromWalletID   string      `json:"fromWalletId"`
	ToWalletNumber string      `json:"toWalletNumber"`
	Amount         json.Number `json:"amount"`
	Description    *string     `json:"description"`
}

func (h *Handler) TransferByNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferByNumberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ToWalletNumber = strings.ToUpper(strings.TrimSpace(req.ToWalletNumber))
	if req.FromWalletID == "" || req.ToWalletNumber == "" || req.Amount == "" {
		respondError(w, http.StatusBadRequest, "missing required fields: fromWalletId, toWalletNumber, amount")
		return
	}
	from, err := h.wallets.GetWallet(r.Context(), userID, req.FromWalletID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	to, err := h.wallets.GetByWalletNumber(r.Context(), req.ToWalletNumber)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.transfer(w, r, userID, from, to, req.Amount, req.Description)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request, userID string, from, to models.Wallet, rawAmount json.Number, description *string) {
	amount, err := parseAmount(rawAmount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	switch {
	case from.ID == to.ID:
		h.respondServiceError(w, r, services.ErrSameWalletTransfer)
		return
	case from.Currency != to.Currency:
		h.respondServiceError(w, r, services.ErrCurrencyMismatch)
		return
	case from.Balance.LessThan(amount):
		h.respondServiceError(w, r, services.ErrInsufficientFunds)
		return
	case to.Balance.Add(amount).GreaterThan(money.MaxAmount):
		h.respondServiceError(w, r, services.ErrBalanceLimitExceeded)
		return
	}
	recipientID := to.ID
	transaction, err := h.transactions.Submit(r.Context(), services.CreateTransactionInput{
		WalletID:          from.ID,
		Amount:            amount,
		Type:              models.TransactionTransfer,
		RecipientWalletID: &recipientID,
		Description:       describe(description, fmt.Sprintf("Transfer to wallet %s", to.WalletNumber)),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if transaction.Status == models.StatusFailed {
		h.respondServiceError(w, r, services.ErrInsufficientFunds)
		return
	}
	updatedFrom, err := h.wallets.GetWallet(r.Context(), userID, from.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	updatedTo, err := h.wallets.FindWallet(r.Context(), to.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"from":        presentWallet(updatedFrom),
		"to":          presentRecipient(updatedTo, userID),
		"transaction": presentTransaction(transaction),
	})
}

type recipientResponse struct {
	ID           string `json:"id"`
	WalletNumber string `json:"walletNumber"`
	Currency     string `json:"currency"`
}

// presentRecipient hides the balance of wallets the caller does not own.
func presentRecipient(wallet models.Wallet, userID string) any {
	if wallet.UserID == userID {
		return presentWallet(wallet)
	}
	return recipientResponse{ID: wallet.ID, WalletNumber: wallet.WalletNumber, Currency: wallet.Currency}
}

func describe(supplied *string, fallback string) *string {
	if supplied != nil && strings.TrimSpace(*supplied) != "" {
		trimmed := strings.TrimSpace(*supplied)
		return &trimmed
	}
	return &fallback
}

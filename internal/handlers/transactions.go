package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ewallet/internal/middleware"
	"ewallet/internal/models"
	"ewallet/internal/services"
	"ewallet/internal/validator"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transaction, err := h.transactions.GetTransaction(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, presentTransaction(transaction))
}

func (h *Handler) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactions, err := h.transactions.ListByWallet(r.Context(), userID, chi.URLParam(r, "walletId"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, presentTransactions(transactions))
}

type createTransactionRequest struct {
	WalletID          string      `json:"walletId"`
	Amount            json.Number `json:"amount"`
	Type              string      `json:"type"`
	RecipientWalletID *string     `json:"recipientWalletId"`
	Description       *string     `json:"description"`
}

// CreateTransaction records a transaction and processes it straight away. The
// response carries the final status, which may be FAILED.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WalletID == "" || req.Amount == "" || req.Type == "" {
		respondError(w, http.StatusBadRequest, "missing required fields: walletId, amount, type")
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), userID, req.WalletID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	txType, err := validator.ValidateTransactionType(req.Type)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	hasRecipient := req.RecipientWalletID != nil && *req.RecipientWalletID != ""
	if txType == models.TransactionTransfer && !hasRecipient {
		h.respondServiceError(w, r, services.ErrRecipientRequired)
		return
	}
	if hasRecipient {
		if _, err := h.wallets.FindWallet(r.Context(), *req.RecipientWalletID); err != nil {
			if errors.Is(err, services.ErrWalletNotFound) {
				err = services.ErrRecipientNotFound
			}
			h.respondServiceError(w, r, err)
			return
		}
	}
	transaction, err := h.transactions.Submit(r.Context(), services.CreateTransactionInput{
		WalletID:          wallet.ID,
		Amount:            amount,
		Type:              txType,
		RecipientWalletID: req.RecipientWalletID,
		Description:       req.Description,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, presentTransaction(transaction))
}

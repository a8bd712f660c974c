package handlers

import (
	"net/http"
	"strings"

	"ewallet/internal/middleware"
	"ewallet/internal/models"
	"ewallet/internal/services"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	session, err := h.users.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, requestMeta(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	data := map[string]any{
		"token": session.Token,
		"user":  presentUser(session.User),
	}
	if session.Wallet != nil {
		data["wallet"] = presentWallet(*session.Wallet)
	}
	respondData(w, http.StatusCreated, data)
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username or email and password are required")
		return
	}
	session, err := h.users.Authenticate(r.Context(), identifier, req.Password, requestMeta(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"token": session.Token,
		"user":  presentUser(session.User),
	})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, wallets, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"user":    presentUser(user),
		"wallets": presentWallets(wallets),
	})
}

type updateProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == nil && req.Email == nil && req.Password == nil {
		respondError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), userID, services.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, requestMeta(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"user": presentUser(user)})
}

func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.users.DeleteUser(r.Context(), userID, requestMeta(r)); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	entries, err := h.users.Activity(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	respondData(w, http.StatusOK, entries)
}

package handlers

import (
	"net/http"

	"ewallet/internal/auth"
	"ewallet/internal/middleware"
	"ewallet/internal/websocket"
)

// WSBalances authenticates before the upgrade. Browsers cannot set headers on
// websocket requests, so the token may also come from the query string.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		bearer, err := middleware.BearerToken(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		token = bearer
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if _, err := h.userLookup.GetByID(r.Context(), claims.UserID); err != nil {
		respondError(w, http.StatusUnauthorized, "user not found")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

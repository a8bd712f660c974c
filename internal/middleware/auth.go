package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ewallet/internal/auth"
	"ewallet/internal/models"
)

type contextKey string

const (
	userIDKey      contextKey = "user_id"
	usernameKey    contextKey = "username"
	requestUserKey contextKey = "request_user"
)

// requestUser is installed by RequestLogger and filled in by WithUser, so the
// authenticated user is visible to middleware that sits above Auth.
type requestUser struct {
	id string
}

// UserLookup confirms that a token's subject still exists.
type UserLookup interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

func UsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, userID, username string) context.Context {
	if holder, ok := ctx.Value(requestUserKey).(*requestUser); ok {
		holder.id = userID
	}
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func Auth(secret string, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			user, err := users.GetByID(r.Context(), claims.UserID)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusUnauthorized, "user not found")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user.ID, user.Username)))
		})
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorDetails(w, status, message, "")
}

func writeErrorDetails(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, Details: details})
}

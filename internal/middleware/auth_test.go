package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ewallet/internal/auth"
	"ewallet/internal/models"
)

type stubUsers struct {
	users map[string]models.User
	err   error
}

func (s stubUsers) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.err != nil {
		return models.User{}, s.err
	}
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

var knownUsers = stubUsers{users: map[string]models.User{
	"user-1": {ID: "user-1", Username: "alice"},
}}

func rejectingHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	})
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

func TestAuthMissingHeader(t *testing.T) {
	handler := Auth("secret", knownUsers)(rejectingHandler(t))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body.Success || body.Error != "missing authorization header" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAuthInvalidHeader(t *testing.T) {
	handler := Auth("secret", knownUsers)(rejectingHandler(t))
	for _, header := range []string{"Token abc", "Bearer", "Bearer   "} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestAuthInvalidToken(t *testing.T) {
	handler := Auth("secret", knownUsers)(rejectingHandler(t))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	token, err := auth.GenerateToken("secret", "user-1", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	handler := Auth("secret", knownUsers)(rejectingHandler(t))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthDeletedUser(t *testing.T) {
	token, err := auth.GenerateToken("secret", "user-2", "ghost", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	handler := Auth("secret", knownUsers)(rejectingHandler(t))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Error != "user not found" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestAuthLookupFailure(t *testing.T) {
	token, err := auth.GenerateToken("secret", "user-1", "alice", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	handler := Auth("secret", stubUsers{err: errors.New("db down")})(rejectingHandler(t))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestAuthValidToken(t *testing.T) {
	token, err := auth.GenerateToken("secret", "user-1", "alice", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	handler := Auth("secret", knownUsers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok || userID != "user-1" {
			t.Fatalf("expected user-1 in context")
		}
		if username := UsernameFromContext(r.Context()); username != "alice" {
			t.Fatalf("expected alice in context, got %q", username)
		}
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestUserIDFromContextEmpty(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
	if _, ok := UserIDFromContext(WithUser(context.Background(), "", "")); ok {
		t.Fatal("expected empty user id to be rejected")
	}
}

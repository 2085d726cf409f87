package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"diarylink/internal/auth"
	"diarylink/internal/config"

	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	authCfg := config.AuthConfig{JWTSecretKey: "test-secret", JWTExpiry: time.Minute}

	var gotUserID string
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = GetUserIDFromContext(r.Context())
	})
	handler := AuthMiddleware(next, authCfg)

	t.Run("valid token", func(t *testing.T) {
		called = false
		token, err := auth.GenerateToken("u1", "Alice", authCfg)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.True(t, called)
		require.Equal(t, "u1", gotUserID)
	})

	t.Run("missing header", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.False(t, called)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.False(t, called)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.False(t, called)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

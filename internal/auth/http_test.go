// ABOUTME: Tests for the HTTP auth middleware and token extraction helpers
// ABOUTME: Verifies bearer parsing, verdict mapping, and principal propagation

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-im/parley/internal/ephemeral"
	"github.com/parley-im/parley/internal/store"
)

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "query-token", TokenFromRequest(r), "query parameter wins")

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, TokenFromRequest(r))
}

func TestHTTPAuthMiddleware(t *testing.T) {
	users := store.NewMockStore()
	eph := ephemeral.NewMemory()
	defer eph.Close()
	tokens := newTestTokenService(t, eph)

	user := &store.User{ID: "u1", Username: "alice", Email: "alice@example.com", CreatedAt: time.Now()}
	require.NoError(t, users.CreateUser(context.Background(), user))

	token, err := tokens.Mint(user, nil)
	require.NoError(t, err)

	var gotPrincipal *Principal
	handler := HTTPAuthMiddleware(tokens, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, gotPrincipal)
		assert.Equal(t, "u1", gotPrincipal.UserID)
		assert.Equal(t, "alice", gotPrincipal.Username)
		assert.Equal(t, token, gotPrincipal.Token)
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		require.NoError(t, tokens.Revoke(context.Background(), token))
		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "revoked")
	})

	t.Run("unknown subject", func(t *testing.T) {
		ghost, err := tokens.Mint(&store.User{ID: "u2", Username: "ghost"}, nil)
		require.NoError(t, err)
		r := httptest.NewRequest(http.MethodGet, "/api", nil)
		r.Header.Set("Authorization", "Bearer "+ghost)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

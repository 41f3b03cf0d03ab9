// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Extracts the token from Authorization header or token query parameter

package auth

import (
	"net/http"
	"strings"

	"github.com/parley-im/parley/internal/store"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest returns the bearer token carried by an HTTP request,
// checking the token query parameter first and the Authorization header
// second. The realtime handshake and the REST middleware share this.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// HTTPAuthMiddleware creates an HTTP middleware that validates bearer tokens,
// resolves the user, and attaches a Principal to the request context.
// Validation runs the full verdict including the revocation blocklist.
func HTTPAuthMiddleware(tokens *TokenService, users store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			state, claims := tokens.Validate(r.Context(), token)
			if state != TokenActive {
				http.Error(w, `{"error":"token `+state.String()+`"}`, http.StatusUnauthorized)
				return
			}

			user, err := users.GetUserByUsername(r.Context(), claims.Subject)
			if err != nil {
				http.Error(w, `{"error":"unknown principal"}`, http.StatusUnauthorized)
				return
			}

			principal := &Principal{
				UserID:   user.ID,
				Username: user.Username,
				Token:    token,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

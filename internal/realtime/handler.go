// ABOUTME: HTTP handler upgrading authenticated requests to realtime sessions
// ABOUTME: Handshake validates the bearer token before the protocol upgrade

package realtime

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/store"
)

// Handler upgrades HTTP requests to realtime connections. Authentication
// happens before the upgrade: a missing, invalid, expired, or revoked token,
// or a token bound to a user that no longer exists, rejects the handshake
// with a plain HTTP status.
type Handler struct {
	hub      *Hub
	tokens   *auth.TokenService
	users    store.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the realtime handshake handler.
func NewHandler(hub *Hub, tokens *auth.TokenService, users store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		tokens: tokens,
		users:  users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth is the access control; cross-origin browser
			// clients are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "realtime"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	state, claims := h.tokens.Validate(r.Context(), token)
	if state != auth.TokenActive {
		http.Error(w, "token "+state.String(), http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), claims.Subject)
	if err != nil {
		h.logger.Warn("handshake for unknown user", "username", claims.Subject, "error", err)
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	s := newSession(conn, user.ID, user.Username, h.hub)
	if err := h.hub.add(r.Context(), s); err != nil {
		h.logger.Error("registering connection", "user_id", user.ID, "error", err)
		conn.Close()
		return
	}

	h.logger.Info("connection established",
		"user_id", user.ID, "username", user.Username, "connection_id", s.id)

	go s.writePump()
	go s.readPump()
}

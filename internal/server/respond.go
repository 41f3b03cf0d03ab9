// ABOUTME: JSON response helpers and the sentinel-to-HTTP-status mapping
// ABOUTME: Client-facing errors carry safe messages, never internal details

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/ephemeral"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/pipeline"
	"github.com/parley-im/parley/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// respondError maps a service error to an HTTP response. Known sentinels
// surface their own message; anything else becomes an opaque 500 and is
// logged server-side.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken):
		writeError(w, http.StatusUnauthorized, err.Error())

	case errors.Is(err, conversation.ErrNotParticipant),
		errors.Is(err, conversation.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, msgstore.ErrNotFound),
		errors.Is(err, conversation.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "not found")

	case errors.Is(err, store.ErrUsernameTaken),
		errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, conversation.ErrConversationFull):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrSamePassword),
		errors.Is(err, auth.ErrInvalidResetToken),
		errors.Is(err, conversation.ErrOperationNotAllowed),
		errors.Is(err, conversation.ErrSelfConversation),
		errors.Is(err, pipeline.ErrEmptyDraft):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, ephemeral.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")

	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON parses a request body into dst, rejecting unknown garbage with
// a 400. Returns false when a response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// ABOUTME: HTTP handlers for message history, sending, search, and receipts
// ABOUTME: Sends go through the pipeline; reads are viewer-relative on status

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/search"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// viewFor returns a copy of the message with the status the viewer is
// allowed to see. Only the author sees the aggregate.
func (s *Server) viewFor(m *msgstore.Message, viewerID string) *msgstore.Message {
	v := *m
	v.Status = s.receipts.StatusFor(m, viewerID)
	return &v
}

// handleHistory returns conversation messages oldest first, optionally
// strictly after ?since (RFC 3339), capped at ?limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	if !s.requireAccess(w, r, id, p.UserID) {
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	messages, err := s.msgs.ListByConversation(r.Context(), id, since, limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	out := make([]*msgstore.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, s.viewFor(m, p.UserID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// handleSendMessage accepts a draft and hands it to the pipeline. The id is
// assigned up front so the response identifies the message before the
// persistence worker gets to it.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	if !s.requireAccess(w, r, id, p.UserID) {
		return
	}

	msg := &msgstore.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		SenderID:       p.UserID,
		SenderUsername: p.Username,
		Content:        req.Content,
	}
	if err := s.pipe.Submit(r.Context(), msg); err != nil {
		respondError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":             msg.ID,
		"conversationId": id,
		"status":         msgstore.StatusSent,
	})
}

// handleSearch runs a text search within one conversation. Supported query
// parameters: q, sender, from, to (dates, from inclusive, to spanning the
// whole day), hasMedia, page, size.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")
	q := r.URL.Query()

	filters := &search.Filters{Sender: q.Get("sender")}
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		filters.From = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		filters.To = parsed
	}
	if raw := q.Get("hasMedia"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "hasMedia must be a boolean")
			return
		}
		filters.HasMedia = &v
	}

	page := search.Page{}
	if raw := q.Get("page"); raw != "" {
		page.Number, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("size"); raw != "" {
		page.Size, _ = strconv.Atoi(raw)
	}

	result, err := s.search.Search(r.Context(), id, p.UserID, q.Get("q"), filters, page)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMessageContext returns a window of messages around one message,
// for jumping from a search hit into the surrounding history.
func (s *Server) handleMessageContext(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	window, err := s.search.Context(r.Context(), id, p.UserID, n)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": window})
}

// handleMessageReceipt records a delivered or read receipt for the caller.
// Denied receipts are dropped without telling the caller.
func (s *Server) handleMessageReceipt(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var req struct {
		StatusType string `json:"statusType"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var err error
	switch req.StatusType {
	case "DELIVERED":
		err = s.receipts.MarkDelivered(r.Context(), id, p.UserID)
	case "READ":
		err = s.receipts.MarkRead(r.Context(), id, p.UserID)
	default:
		writeError(w, http.StatusBadRequest, "statusType must be DELIVERED or READ")
		return
	}
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

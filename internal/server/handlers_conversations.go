// ABOUTME: HTTP handlers for conversation lifecycle and membership
// ABOUTME: Direct and group creation, settings, participants, deletion, read marks

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/store"
)

type participantResponse struct {
	UserID     string     `json:"userId"`
	Role       store.Role `json:"role"`
	Active     bool       `json:"active"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`
}

type conversationResponse struct {
	ID              string                 `json:"id"`
	Type            store.ConversationKind `json:"type"`
	Name            string                 `json:"name,omitempty"`
	Description     string                 `json:"description,omitempty"`
	IsPublic        bool                   `json:"isPublic"`
	MaxParticipants int                    `json:"maxParticipants,omitempty"`
	CreatedBy       string                 `json:"createdBy"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	Participants    []participantResponse  `json:"participants,omitempty"`
}

func conversationBody(c *store.Conversation, participants []*store.Participant) conversationResponse {
	resp := conversationResponse{
		ID:              c.ID,
		Type:            c.Kind,
		Name:            c.Name,
		Description:     c.Description,
		IsPublic:        c.IsPublic,
		MaxParticipants: c.MaxParticipants,
		CreatedBy:       c.CreatedBy,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	for _, p := range participants {
		resp.Participants = append(resp.Participants, participantResponse{
			UserID:     p.UserID,
			Role:       p.Role,
			Active:     p.Active,
			JoinedAt:   p.JoinedAt,
			LastReadAt: p.LastReadAt,
		})
	}
	return resp
}

// handleListConversations lists the caller's conversations, optionally
// filtered with ?type=direct or ?type=group.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var (
		convs []*store.Conversation
		err   error
	)
	switch strings.ToUpper(r.URL.Query().Get("type")) {
	case "":
		convs, err = s.conv.ListForUser(r.Context(), p.UserID)
	case string(store.KindDirect):
		convs, err = s.conv.ListForUserByKind(r.Context(), p.UserID, store.KindDirect)
	case string(store.KindGroup):
		convs, err = s.conv.ListForUserByKind(r.Context(), p.UserID, store.KindGroup)
	default:
		writeError(w, http.StatusBadRequest, "type must be direct or group")
		return
	}
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationBody(c, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	if !s.requireAccess(w, r, id, p.UserID) {
		return
	}
	conv, err := s.conv.Get(r.Context(), id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	participants, err := s.users.ListParticipants(r.Context(), id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationBody(conv, participants))
}

// handleCreateDirect creates (or returns the existing) DIRECT conversation
// between the caller and the path user. The id is canonical, so repeated
// calls converge on the same conversation.
func (s *Server) handleCreateDirect(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	other := r.PathValue("otherUserId")

	conv, err := s.conv.CreateDirect(r.Context(), p.UserID, other)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	participants, err := s.users.ListParticipants(r.Context(), conv.ID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, conversationBody(conv, participants))
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req struct {
		Name            string   `json:"name"`
		Description     string   `json:"description"`
		IsPublic        bool     `json:"isPublic"`
		MaxParticipants int      `json:"maxParticipants"`
		ParticipantIDs  []string `json:"participantIds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	conv, err := s.conv.CreateGroup(r.Context(), p.UserID, conversation.GroupSpec{
		Name:            req.Name,
		Description:     req.Description,
		IsPublic:        req.IsPublic,
		MaxParticipants: req.MaxParticipants,
		ParticipantIDs:  req.ParticipantIDs,
	})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	participants, err := s.users.ListParticipants(r.Context(), conv.ID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, conversationBody(conv, participants))
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var req struct {
		Name            *string `json:"name"`
		Description     *string `json:"description"`
		IsPublic        *bool   `json:"isPublic"`
		MaxParticipants *int    `json:"maxParticipants"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.conv.UpdateGroupSettings(r.Context(), id, p.UserID, store.SettingsUpdate{
		Name:            req.Name,
		Description:     req.Description,
		IsPublic:        req.IsPublic,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	conv, err := s.conv.Get(r.Context(), id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationBody(conv, nil))
}

// handleDeleteConversation tombstones the conversation; the cleanup
// reconciler removes it for good after the retention window. ?hard=true
// skips the tombstone and purges immediately.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var err error
	if r.URL.Query().Get("hard") == "true" {
		err = s.conv.DeleteConversation(r.Context(), id, p.UserID)
	} else {
		err = s.conv.SoftDelete(r.Context(), id, p.UserID)
	}
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	var req struct {
		UserID string `json:"userId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := s.conv.AddUser(r.Context(), id, p.UserID, req.UserID); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")
	target := r.PathValue("userId")

	if err := s.conv.RemoveUser(r.Context(), id, p.UserID, target); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkConversationRead marks every message the caller did not send as
// read in one batch and records the last-read instant.
func (s *Server) handleMarkConversationRead(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	n, err := s.receipts.MarkConversationRead(r.Context(), id, p.UserID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// requireAccess writes a 403 and returns false unless the user is an
// active participant of a live conversation. Unknown conversations get the
// same 403 so the endpoint does not reveal which ids exist.
func (s *Server) requireAccess(w http.ResponseWriter, r *http.Request, conversationID, userID string) bool {
	allowed, err := s.conv.HasAccess(r.Context(), userID, conversationID)
	if err != nil {
		respondError(w, s.logger, err)
		return false
	}
	if !allowed {
		writeError(w, http.StatusForbidden, conversation.ErrNotParticipant.Error())
		return false
	}
	return true
}

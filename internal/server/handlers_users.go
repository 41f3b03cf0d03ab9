// ABOUTME: HTTP handlers for user profiles
// ABOUTME: Public profile lookup with live presence, and own-profile updates

package server

import (
	"net/http"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/ephemeral"
	"github.com/parley-im/parley/internal/store"
)

// handleGetUser returns a public profile. Presence comes from the ephemeral
// store; when that lookup fails the stored flag is used instead.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	resp := publicUser(user)
	if presence, err := s.manager.Presence(r.Context(), user.ID); err == nil {
		resp.Online = presence == ephemeral.PresenceOnline
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var req struct {
		DisplayName *string `json:"displayName"`
		AvatarURL   *string `json:"avatarUrl"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DisplayName == nil && req.AvatarURL == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	err := s.users.UpdateUserProfile(r.Context(), p.UserID, store.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	user, err := s.users.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ownUser(user))
}

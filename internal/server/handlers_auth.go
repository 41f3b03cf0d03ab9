// ABOUTME: HTTP handlers for the authentication surface
// ABOUTME: Register, login, logout, profile lookup, and the password flows

package server

import (
	"net/http"
	"time"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/store"
)

type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Online      bool       `json:"online"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// publicUser strips the email from a profile shown to other users.
func publicUser(u *store.User) userResponse {
	r := ownUser(u)
	r.Email = ""
	return r
}

func ownUser(u *store.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		Online:      u.Online,
		LastSeenAt:  u.LastSeenAt,
	}
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.auth.Register(r.Context(), auth.RegisterRequest{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: ownUser(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: ownUser(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	if err := s.auth.Logout(r.Context(), p.Token); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	user, err := s.users.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ownUser(user))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleForgotPassword always answers 200 so the endpoint cannot be used to
// probe which emails are registered. Failures are logged server-side.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.logger.Warn("password reset request failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if the address is registered, a reset email has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ABOUTME: Auth service orchestrating registration, login, logout, and password flows
// ABOUTME: Coordinates the relational store, token service, ephemeral store, and mailer

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/parley-im/parley/internal/ephemeral"
	"github.com/parley-im/parley/internal/metrics"
	"github.com/parley-im/parley/internal/store"
)

// Auth service errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrSamePassword       = errors.New("new password must differ from current password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	resetTokenBytes   = 32
	mailerCallTimeout = 5 * time.Second
)

// dummyHash is compared against when the login principal is unknown, so the
// response time does not reveal whether the email exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("parley-dummy-password"), bcryptCost)

// Mailer sends outbound notification email. The SMTP implementation lives in
// internal/mail; tests use a recording fake.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
}

// ResetConfig holds password-reset token and rate-limit parameters
type ResetConfig struct {
	TokenTTL   time.Duration
	RateWindow time.Duration
	RateLimit  int
}

// Service implements the authentication flows: register, login, logout,
// password change, and the two-stage password reset.
type Service struct {
	users  store.Store
	eph    ephemeral.Store
	tokens *TokenService
	mailer Mailer
	reset  ResetConfig
	logger *slog.Logger
}

// NewService creates an auth service.
func NewService(users store.Store, eph ephemeral.Store, tokens *TokenService, mailer Mailer, reset ResetConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reset.TokenTTL == 0 {
		reset.TokenTTL = 30 * time.Minute
	}
	if reset.RateWindow == 0 {
		reset.RateWindow = time.Hour
	}
	if reset.RateLimit == 0 {
		reset.RateLimit = 5
	}
	return &Service{
		users:  users,
		eph:    eph,
		tokens: tokens,
		mailer: mailer,
		reset:  reset,
		logger: logger.With("component", "auth"),
	}
}

// RegisterRequest carries the inputs for creating a new account
type RegisterRequest struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// Register creates a user, mints a token, and marks the user online.
// Returns store.ErrUsernameTaken or store.ErrEmailTaken on uniqueness
// violations.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*store.User, string, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)
	if username == "" || email == "" {
		return nil, "", fmt.Errorf("%w: username and email are required", ErrInvalidCredentials)
	}
	if len(req.Password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	now := time.Now().UTC()
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		CreatedAt:    now,
		Online:       true,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Mint(user, nil)
	if err != nil {
		return nil, "", fmt.Errorf("minting token: %w", err)
	}

	s.markOnline(ctx, user.ID)
	s.logger.Info("user registered", "user_id", user.ID, "username", username)
	return user, token, nil
}

// Login verifies credentials by email, mints a token, and marks the user
// online. Unknown emails and wrong passwords are indistinguishable to the
// caller.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same hashing cost as a real comparison
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Mint(user, nil)
	if err != nil {
		return nil, "", fmt.Errorf("minting token: %w", err)
	}

	s.markOnline(ctx, user.ID)
	user.Online = true
	s.logger.Debug("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Logout revokes the presented token and marks the user offline. Invalid
// tokens still succeed silently from the caller's perspective.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Debug("logout with unparseable token", "error", err)
		return nil
	}

	if err := s.tokens.Revoke(ctx, token); err != nil {
		return err
	}

	if user, err := s.users.GetUserByUsername(ctx, claims.Subject); err == nil {
		if err := s.users.SetUserPresence(ctx, user.ID, false, time.Now().UTC()); err != nil {
			s.logger.Warn("marking user offline", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// GetUserFromToken validates the token and returns the bound user.
func (s *Service) GetUserFromToken(ctx context.Context, token string) (*store.User, error) {
	state, claims := s.tokens.Validate(ctx, token)
	if state != TokenActive {
		return nil, state.Err()
	}
	return s.users.GetUserByUsername(ctx, claims.Subject)
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}
	if newPassword == current {
		return ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// RequestPasswordReset issues a single-use reset token and emails it to the
// user. The call always succeeds from the caller's perspective: rate-limited
// requests and unknown emails are silent no-ops, so account existence is
// never revealed.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	count, err := s.eph.Incr(ctx, ephemeral.KeyResetRate(email), s.reset.RateWindow)
	if err != nil {
		s.logger.Warn("reset rate counter unavailable", "error", err)
		return nil
	}
	if count > int64(s.reset.RateLimit) {
		metrics.ResetSuppressed.Inc()
		s.logger.Warn("password reset suppressed by rate limit", "email", email)
		return nil
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("password reset for unknown email", "email", email)
			return nil
		}
		s.logger.Warn("password reset lookup failed", "error", err)
		return nil
	}

	token, err := generateResetToken()
	if err != nil {
		s.logger.Error("generating reset token", "error", err)
		return nil
	}

	if err := s.eph.Set(ctx, ephemeral.KeyResetToken(token), user.ID, s.reset.TokenTTL); err != nil {
		s.logger.Error("storing reset token", "error", err)
		return nil
	}

	// The mailer call is bounded so a slow SMTP server cannot hold the
	// request; failures are logged and do not change the visible response.
	mailCtx, cancel := context.WithTimeout(ctx, mailerCallTimeout)
	defer cancel()
	if err := s.mailer.SendPasswordReset(mailCtx, user.Email, token); err != nil {
		s.logger.Error("sending reset email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password hash.
// The token is deleted atomically before use, so it can succeed at most once.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.eph.GetDel(ctx, ephemeral.KeyResetToken(token))
	if err != nil {
		if errors.Is(err, ephemeral.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("consuming reset token: %w", err)
	}

	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.logger.Info("password reset", "user_id", userID)
	return nil
}

// markOnline records presence in both the relational store and the ephemeral
// presence key. Presence write failures are logged, not surfaced.
func (s *Service) markOnline(ctx context.Context, userID string) {
	if err := s.users.SetUserPresence(ctx, userID, true, time.Now().UTC()); err != nil {
		s.logger.Warn("marking user online", "user_id", userID, "error", err)
	}
	if err := s.eph.Set(ctx, ephemeral.KeyPresence(userID), ephemeral.PresenceOnline, 5*time.Minute); err != nil {
		s.logger.Debug("presence write failed", "user_id", userID, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateResetToken returns a URL-safe token with 256 bits of entropy.
func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

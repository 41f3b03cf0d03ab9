// ABOUTME: JWT token service for minting, parsing, validating, and revoking bearer tokens
// ABOUTME: HS256 signing with issuer/audience checks and an ephemeral blocklist

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/parley-im/parley/internal/ephemeral"
	"github.com/parley-im/parley/internal/metrics"
	"github.com/parley-im/parley/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRevokedToken = errors.New("token revoked")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenState is the verdict of a full token validation
type TokenState int

// Token states
const (
	TokenInvalid TokenState = iota
	TokenExpired
	TokenRevoked
	TokenActive
)

// String returns the lowercase name of the state.
func (s TokenState) String() string {
	switch s {
	case TokenActive:
		return "active"
	case TokenExpired:
		return "expired"
	case TokenRevoked:
		return "revoked"
	default:
		return "invalid"
	}
}

// Err maps a non-active state to its sentinel error.
func (s TokenState) Err() error {
	switch s {
	case TokenActive:
		return nil
	case TokenExpired:
		return ErrExpiredToken
	case TokenRevoked:
		return ErrRevokedToken
	default:
		return ErrInvalidToken
	}
}

// TokenConfig holds the signing and claim parameters for the token service
type TokenConfig struct {
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience string

	// AllowLegacy accepts tokens missing issuer/audience claims. Intended
	// only for migrating pre-claim deployments; every acceptance is logged.
	AllowLegacy bool
}

// TokenService mints and validates HS256-signed bearer tokens. Revocation is
// tracked in the ephemeral blocklist keyed by jti; when the blocklist is
// unreachable, validation fails open and increments a metric.
type TokenService struct {
	cfg       TokenConfig
	blocklist ephemeral.Store
	logger    *slog.Logger
}

// NewTokenService creates a token service. The blocklist store may be shared
// with other ephemeral consumers.
func NewTokenService(cfg TokenConfig, blocklist ephemeral.Store, logger *slog.Logger) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &TokenService{
		cfg:       cfg,
		blocklist: blocklist,
		logger:    logger.With("component", "tokens"),
	}, nil
}

// TTL returns the configured token lifetime.
func (t *TokenService) TTL() time.Duration {
	return t.cfg.TTL
}

// Mint creates a signed token for the given user. Extra claims are merged in
// before the registered set; they cannot override it.
func (t *TokenService) Mint(user *store.User, extraClaims map[string]any) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range extraClaims {
		claims[k] = v
	}
	claims["sub"] = user.Username
	claims["iss"] = t.cfg.Issuer
	claims["aud"] = t.cfg.Audience
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(t.cfg.TTL).Unix()
	claims["jti"] = uuid.New().String()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.cfg.Secret)
}

// Claims is the parsed registered-claim subset the platform uses
type Claims struct {
	Subject   string
	Issuer    string
	Audience  string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Parse verifies the token signature and expiry and extracts the claims.
// It does not check issuer, audience, or the blocklist; use Validate for the
// full verdict.
func (t *TokenService) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.cfg.Secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	claims.Subject, ok = mapClaims["sub"].(string)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	claims.Issuer, _ = mapClaims["iss"].(string)
	claims.JTI, _ = mapClaims["jti"].(string)

	// aud may be a string or a list per RFC 7519
	switch aud := mapClaims["aud"].(type) {
	case string:
		claims.Audience = aud
	case []any:
		if len(aud) > 0 {
			claims.Audience, _ = aud[0].(string)
		}
	}

	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, nil
}

// ExtractID returns the token's unique identifier (jti) without the full
// validation pass.
func (t *TokenService) ExtractID(tokenString string) (string, error) {
	claims, err := t.Parse(tokenString)
	if err != nil {
		return "", err
	}
	if claims.JTI == "" {
		return "", fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	return claims.JTI, nil
}

// Validate runs the full verdict: signature, expiry, issuer/audience match,
// and the revocation blocklist. When the blocklist store is unreachable, it
// fails open: availability is prioritized over revocation recency, and every
// such acceptance is counted on a metric.
func (t *TokenService) Validate(ctx context.Context, tokenString string) (TokenState, *Claims) {
	claims, err := t.Parse(tokenString)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return TokenExpired, nil
		}
		return TokenInvalid, nil
	}

	if claims.Issuer != t.cfg.Issuer || claims.Audience != t.cfg.Audience {
		legacy := claims.Issuer == "" && claims.Audience == ""
		if !legacy || !t.cfg.AllowLegacy {
			return TokenInvalid, nil
		}
		t.logger.Warn("accepting legacy token without issuer/audience claims",
			"sub", claims.Subject)
	}

	if claims.JTI != "" && t.blocklist != nil {
		revoked, err := t.blocklist.Exists(ctx, ephemeral.KeyTokenBlock(claims.JTI))
		if err != nil {
			metrics.BlocklistFailOpen.Inc()
			t.logger.Warn("blocklist unreachable, failing open", "error", err)
		} else if revoked {
			return TokenRevoked, nil
		}
	}

	return TokenActive, claims
}

// Revoke adds the token's jti to the blocklist with a TTL equal to the
// remaining token lifetime. Already-expired tokens are not stored.
func (t *TokenService) Revoke(ctx context.Context, tokenString string) error {
	claims, err := t.Parse(tokenString)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil
		}
		return err
	}
	if claims.JTI == "" {
		return fmt.Errorf("%w: jti", ErrMissingClaim)
	}

	remaining := time.Until(claims.ExpiresAt)
	if remaining <= 0 {
		return nil
	}

	if err := t.blocklist.Set(ctx, ephemeral.KeyTokenBlock(claims.JTI), "revoked", remaining); err != nil {
		return fmt.Errorf("storing revocation: %w", err)
	}
	metrics.TokensRevoked.Inc()
	t.logger.Debug("token revoked", "jti", claims.JTI, "remaining", remaining)
	return nil
}

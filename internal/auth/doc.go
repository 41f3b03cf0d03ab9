// ABOUTME: Package documentation for authentication and token handling
// ABOUTME: Explains the token lifecycle and the fail-open blocklist trade-off

// Package auth implements the token lifecycle and the account flows built on
// it: registration, login, logout, password change, and the two-stage
// password reset.
//
// Bearer tokens are HS256-signed JWTs carrying subject, issuer, audience,
// and a unique jti. Revocation stores the jti in the ephemeral blocklist for
// the token's remaining lifetime. When the blocklist is unreachable,
// validation deliberately fails open: a signature-valid, unexpired token is
// accepted and a metric is incremented. Availability wins over revocation
// recency; the trade-off is documented, not accidental.
package auth

package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kind constants, carried in the `typ` claim so a refresh token can
// never be replayed as an access token.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenTypeBearer is the token_type returned in every token response.
const TokenTypeBearer = "Bearer"

// AccessTokenClaims is the explicit payload of an access token JWT.
// Permissions are a snapshot resolved at issuance time; verification does
// not re-check them against live role assignments.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id"`
	Scope       string   `json:"scope"`
	Kind        string   `json:"typ"`
	Permissions []string `json:"permissions,omitempty"`
}

// RefreshTokenClaims is the explicit payload of a refresh token JWT.
type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	Kind     string `json:"typ"`
}

// IDTokenClaims is the explicit payload of an OIDC ID token (OIDC Core 1.0 §2).
type IDTokenClaims struct {
	jwt.RegisteredClaims
	AuthTime int64  `json:"auth_time,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
	AtHash   string `json:"at_hash,omitempty"`

	// Profile claims (scope "profile")
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Picture           string `json:"picture,omitempty"`
	UpdatedAt         int64  `json:"updated_at,omitempty"`

	// Email claims (scope "email")
	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

// Result is the outcome of a token generation call.
type Result struct {
	TokenString string
	TokenType   string
	JTI         string
	ExpiresAt   time.Time
}

// VerifiedToken is the outcome of a successful signature + claim check.
type VerifiedToken struct {
	UserID      string
	ClientID    string
	Scopes      string
	JTI         string
	Kind        string
	ExpiresAt   time.Time
	Permissions []string
}

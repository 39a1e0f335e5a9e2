package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/go-tokengate/tokengate/internal/keys"
)

// Signer issues and parses RS256 JWTs against a versioned key set.
// Signing always uses the current key; parsing accepts any known key id.
type Signer struct {
	keys   *keys.Manager
	issuer string
	leeway time.Duration
}

// NewSigner creates a Signer bound to a key manager and issuer URL.
func NewSigner(km *keys.Manager, issuer string, leeway time.Duration) *Signer {
	return &Signer{keys: km, issuer: issuer, leeway: leeway}
}

// Issuer returns the iss value stamped into every token.
func (s *Signer) Issuer() string {
	return s.issuer
}

// NewJTI returns a fresh unique token identifier.
func NewJTI() string {
	return uuid.New().String()
}

// SignAccessToken signs an access token for subject (empty for
// client_credentials) with a permissions snapshot resolved at issuance.
func (s *Signer) SignAccessToken(subject, clientID, scope string, permissions []string, ttl time.Duration) (*Result, error) {
	now := time.Now()
	jti := NewJTI()
	expiresAt := now.Add(ttl)

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		ClientID:    clientID,
		Scope:       scope,
		Kind:        KindAccess,
		Permissions: permissions,
	}

	signed, err := s.sign(claims)
	if err != nil {
		return nil, err
	}
	return &Result{TokenString: signed, TokenType: TokenTypeBearer, JTI: jti, ExpiresAt: expiresAt}, nil
}

// SignRefreshToken signs a refresh token for subject.
func (s *Signer) SignRefreshToken(subject, clientID, scope string, ttl time.Duration) (*Result, error) {
	now := time.Now()
	jti := NewJTI()
	expiresAt := now.Add(ttl)

	claims := RefreshTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		ClientID: clientID,
		Scope:    scope,
		Kind:     KindRefresh,
	}

	signed, err := s.sign(claims)
	if err != nil {
		return nil, err
	}
	return &Result{TokenString: signed, TokenType: TokenTypeBearer, JTI: jti, ExpiresAt: expiresAt}, nil
}

// SignIDToken signs an OIDC ID token. The caller fills the profile and
// email claims according to the granted scopes.
func (s *Signer) SignIDToken(claims IDTokenClaims) (string, error) {
	return s.sign(claims)
}

func (s *Signer) sign(claims jwt.Claims) (string, error) {
	current := s.keys.Current()
	rsaKey, ok := current.Key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("signing key %s is not RSA", current.KeyID)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = current.KeyID

	signed, err := tok.SignedString(rsaKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// keyfunc resolves the verification key from the kid header. Tokens signed
// by retired keys remain verifiable until they expire.
func (s *Signer) keyfunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrInvalidToken
	}
	key, err := s.keys.Lookup(kid)
	if err != nil {
		return nil, err
	}
	return key.Key.Public(), nil
}

var parserOptions = []jwt.ParserOption{
	jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
}

// ParseAccessToken verifies signature and registered claims of an access
// token and rejects tokens of any other kind.
func (s *Signer) ParseAccessToken(raw string) (*VerifiedToken, error) {
	var claims AccessTokenClaims
	if err := s.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, ErrWrongTokenKind
	}
	return &VerifiedToken{
		UserID:      claims.Subject,
		ClientID:    claims.ClientID,
		Scopes:      claims.Scope,
		JTI:         claims.ID,
		Kind:        claims.Kind,
		ExpiresAt:   claims.ExpiresAt.Time,
		Permissions: claims.Permissions,
	}, nil
}

// ParseRefreshToken verifies signature and registered claims of a refresh
// token and rejects tokens of any other kind.
func (s *Signer) ParseRefreshToken(raw string) (*VerifiedToken, error) {
	var claims RefreshTokenClaims
	if err := s.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, ErrWrongTokenKind
	}
	return &VerifiedToken{
		UserID:    claims.Subject,
		ClientID:  claims.ClientID,
		Scopes:    claims.Scope,
		JTI:       claims.ID,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ParseAnyToken verifies signature and registered claims without
// constraining the token kind. Used by revocation, which accepts both.
func (s *Signer) ParseAnyToken(raw string) (*VerifiedToken, error) {
	var claims AccessTokenClaims
	if err := s.parse(raw, &claims); err != nil {
		return nil, err
	}
	return &VerifiedToken{
		UserID:    claims.Subject,
		ClientID:  claims.ClientID,
		Scopes:    claims.Scope,
		JTI:       claims.ID,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Signer) parse(raw string, claims jwt.Claims) error {
	opts := append([]jwt.ParserOption{
		jwt.WithIssuer(s.issuer),
		jwt.WithLeeway(s.leeway),
	}, parserOptions...)

	tok, err := jwt.ParseWithClaims(raw, claims, s.keyfunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}

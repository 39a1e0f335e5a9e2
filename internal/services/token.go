package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
	"github.com/go-tokengate/tokengate/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Grant type constants (RFC 6749 / RFC 8628 registry subset supported here)
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
)

// GrantRequest is one of AuthorizationCodeGrant, RefreshTokenGrant, or
// ClientCredentialsGrant. Handlers build the concrete type from form
// parameters; the service dispatches on it.
type GrantRequest interface {
	grantType() string
}

// AuthorizationCodeGrant exchanges an authorization code for tokens.
type AuthorizationCodeGrant struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

func (AuthorizationCodeGrant) grantType() string { return GrantTypeAuthorizationCode }

// RefreshTokenGrant rotates a refresh token into a new token pair.
type RefreshTokenGrant struct {
	RefreshToken string
	Scope        string // optional narrowing; empty inherits the original scope
}

func (RefreshTokenGrant) grantType() string { return GrantTypeRefreshToken }

// ClientCredentialsGrant issues a machine token for the client itself.
type ClientCredentialsGrant struct {
	Scope string // optional narrowing; empty grants all registered scopes
}

func (ClientCredentialsGrant) grantType() string { return GrantTypeClientCredentials }

// TokenResponse is the issued token set returned to handlers.
type TokenResponse struct {
	AccessToken  *models.AccessToken
	RefreshToken *models.RefreshToken // nil for client_credentials
	IDToken      string               // empty unless openid scope granted
	Scope        string
	ExpiresIn    int64
}

// TokenService issues, refreshes, and records tokens.
type TokenService struct {
	store        *store.Store
	config       *config.Config
	signer       *token.Signer
	resolver     PermissionResolver
	authzService *AuthorizationService
	auditService *AuditService
	metrics      core.Recorder
}

func NewTokenService(
	s *store.Store,
	cfg *config.Config,
	signer *token.Signer,
	resolver PermissionResolver,
	authzService *AuthorizationService,
	auditService *AuditService,
	m core.Recorder,
) *TokenService {
	return &TokenService{
		store:        s,
		config:       cfg,
		signer:       signer,
		resolver:     resolver,
		authzService: authzService,
		auditService: auditService,
		metrics:      m,
	}
}

// Exchange handles a token endpoint request for an authenticated client.
func (s *TokenService) Exchange(
	ctx context.Context,
	client *models.Client,
	grant GrantRequest,
) (*TokenResponse, error) {
	if !client.AllowsGrantType(grant.grantType()) {
		return nil, ErrUnauthorizedClient
	}

	switch g := grant.(type) {
	case AuthorizationCodeGrant:
		return s.exchangeAuthorizationCode(ctx, client, g)
	case RefreshTokenGrant:
		return s.refreshAccessToken(ctx, client, g)
	case ClientCredentialsGrant:
		return s.issueClientCredentialsToken(ctx, client, g)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

// exchangeAuthorizationCode redeems a code and issues the full token set.
func (s *TokenService) exchangeAuthorizationCode(
	ctx context.Context,
	client *models.Client,
	g AuthorizationCodeGrant,
) (*TokenResponse, error) {
	if g.Code == "" || g.RedirectURI == "" {
		return nil, ErrInvalidRequest
	}

	authCode, err := s.authzService.RedeemCode(ctx, client, g.Code, g.RedirectURI, g.CodeVerifier)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthCodeNotFound),
			errors.Is(err, ErrAuthCodeExpired),
			errors.Is(err, ErrAuthCodeAlreadyUsed),
			errors.Is(err, ErrInvalidRedirectURI),
			errors.Is(err, ErrInvalidGrant):
			return nil, ErrInvalidGrant
		default:
			return nil, err
		}
	}

	return s.issueTokenPair(ctx, client, authCode.UserID, authCode.Scopes, issueContext{
		grantType: GrantTypeAuthorizationCode,
		nonce:     authCode.Nonce,
		authTime:  authCode.CreatedAt,
	})
}

// issueContext captures per-grant inputs for token generation.
type issueContext struct {
	grantType       string
	nonce           string
	authTime        time.Time
	previousTokenID string
	rotatedFrom     *models.RefreshToken
}

// issueTokenPair signs and persists an access/refresh token pair, plus an
// ID token when the openid scope was granted.
func (s *TokenService) issueTokenPair(
	ctx context.Context,
	client *models.Client,
	userID, scopes string,
	ic issueContext,
) (*TokenResponse, error) {
	start := time.Now()

	scopeList := token.ParseScopes(scopes)
	permissions, err := s.resolver.ResolvePermissions(ctx, userID, client.ClientID, scopeList)
	if err != nil {
		log.Printf("[Token] Permission resolution failed for user=%s client=%s: %v",
			userID, client.ClientID, err)
		return nil, fmt.Errorf("permission resolution failed: %w", err)
	}

	accessResult, err := s.signer.SignAccessToken(
		userID, client.ClientID, scopes, permissions, s.accessTokenTTL(client))
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	refreshResult, err := s.signer.SignRefreshToken(
		userID, client.ClientID, scopes, s.refreshTokenTTL(client))
	if err != nil {
		return nil, fmt.Errorf("refresh token generation failed: %w", err)
	}

	accessToken := &models.AccessToken{
		ID:        uuid.New().String(),
		TokenHash: util.SHA256Hex(accessResult.TokenString),
		RawToken:  accessResult.TokenString,
		JTI:       accessResult.JTI,
		TokenType: accessResult.TokenType,
		UserID:    userID,
		ClientID:  client.ClientID,
		Scopes:    scopes,
		ExpiresAt: accessResult.ExpiresAt,
	}

	refreshToken := &models.RefreshToken{
		ID:              uuid.New().String(),
		TokenHash:       util.SHA256Hex(refreshResult.TokenString),
		RawToken:        refreshResult.TokenString,
		JTI:             refreshResult.JTI,
		UserID:          userID,
		ClientID:        client.ClientID,
		Scopes:          scopes,
		ExpiresAt:       refreshResult.ExpiresAt,
		PreviousTokenID: ic.previousTokenID,
	}
	accessToken.RefreshTokenID = refreshToken.ID

	// Persistence path depends on whether this is a rotation
	if ic.rotatedFrom != nil {
		if err := s.store.RotateRefreshToken(ic.rotatedFrom, refreshToken); err != nil {
			if errors.Is(err, store.ErrRefreshTokenRotated) {
				// Lost the race: a concurrent refresh already rotated this
				// token. Treat as reuse and kill the family.
				s.handleRefreshReuse(ctx, ic.rotatedFrom)
				return nil, ErrInvalidGrant
			}
			return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
		}
		if err := s.store.CreateAccessToken(accessToken); err != nil {
			return nil, fmt.Errorf("failed to save access token: %w", err)
		}
	} else {
		if err := s.store.CreateRefreshToken(refreshToken); err != nil {
			return nil, fmt.Errorf("failed to save refresh token: %w", err)
		}
		if err := s.store.CreateAccessToken(accessToken); err != nil {
			return nil, fmt.Errorf("failed to save access token: %w", err)
		}
	}

	// ID token when openid was granted; not persisted, not revocable
	var idToken string
	scopeSet := token.NewScopeSetFromList(scopeList)
	if scopeSet.Has(token.ScopeOpenID) && userID != "" {
		idToken = s.generateIDToken(ctx, client, userID, scopeSet, ic, accessResult)
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordTokenIssued("access", ic.grantType, duration)
		s.metrics.RecordTokenIssued("refresh", ic.grantType, duration)
	}

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventAccessTokenIssued,
			Severity:      models.SeverityInfo,
			ActorUserID:   userID,
			ActorClientID: client.ClientID,
			ResourceType:  models.ResourceToken,
			ResourceID:    accessToken.ID,
			Action:        "Access token issued via " + ic.grantType,
			Details: models.AuditDetails{
				"client_id":        client.ClientID,
				"scopes":           scopes,
				"jti":              accessToken.JTI,
				"refresh_token_id": refreshToken.ID,
			},
			Success: true,
		})
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventRefreshTokenIssued,
			Severity:      models.SeverityInfo,
			ActorUserID:   userID,
			ActorClientID: client.ClientID,
			ResourceType:  models.ResourceToken,
			ResourceID:    refreshToken.ID,
			Action:        "Refresh token issued via " + ic.grantType,
			Details: models.AuditDetails{
				"client_id":         client.ClientID,
				"scopes":            scopes,
				"jti":               refreshToken.JTI,
				"previous_token_id": ic.previousTokenID,
			},
			Success: true,
		})
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		Scope:        scopes,
		ExpiresIn:    int64(time.Until(accessResult.ExpiresAt).Seconds()),
	}, nil
}

// generateIDToken builds and signs the OIDC ID token. Failures are logged
// and swallowed: the access/refresh pair is already committed.
func (s *TokenService) generateIDToken(
	ctx context.Context,
	client *models.Client,
	userID string,
	scopeSet token.ScopeSet,
	ic issueContext,
	accessResult *token.Result,
) string {
	now := time.Now()
	claims := token.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.signer.Issuer(),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{client.ClientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.IDTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Nonce:  ic.nonce,
		AtHash: token.ComputeAtHash(accessResult.TokenString),
	}
	if !ic.authTime.IsZero() {
		claims.AuthTime = ic.authTime.Unix()
	}

	// Scope-gated profile claims
	if user, err := s.store.GetUserByID(userID); err == nil {
		if scopeSet.Has(token.ScopeProfile) {
			claims.Name = user.FullName
			claims.PreferredUsername = user.Username
			claims.Picture = user.AvatarURL
			claims.UpdatedAt = user.UpdatedAt.Unix()
		}
		if scopeSet.Has(token.ScopeEmail) {
			claims.Email = user.Email
			verified := false
			claims.EmailVerified = &verified
		}
	} else if scopeSet.Has(token.ScopeProfile) || scopeSet.Has(token.ScopeEmail) {
		log.Printf("[Token] ID token: user lookup failed for user_id=%s, claims omitted: %v",
			userID, err)
	}

	idToken, err := s.signer.SignIDToken(claims)
	if err != nil {
		log.Printf("[Token] ID token generation failed: %v", err)
		return ""
	}

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventIDTokenIssued,
			Severity:      models.SeverityInfo,
			ActorUserID:   userID,
			ActorClientID: client.ClientID,
			ResourceType:  models.ResourceToken,
			ResourceID:    userID,
			Action:        "ID token issued",
			Details:       models.AuditDetails{"client_id": client.ClientID},
			Success:       true,
		})
	}
	return idToken
}

// refreshAccessToken rotates a refresh token into a fresh token pair.
func (s *TokenService) refreshAccessToken(
	ctx context.Context,
	client *models.Client,
	g RefreshTokenGrant,
) (*TokenResponse, error) {
	if g.RefreshToken == "" {
		return nil, ErrInvalidRequest
	}

	// 1. Signature and claim verification
	verified, err := s.signer.ParseRefreshToken(g.RefreshToken)
	if err != nil {
		s.recordRefresh(false)
		return nil, ErrInvalidGrant
	}

	// 2. Load the persisted record
	record, err := s.store.GetRefreshTokenByHash(util.SHA256Hex(g.RefreshToken))
	if err != nil {
		s.recordRefresh(false)
		return nil, ErrInvalidGrant
	}

	// 3. Token must belong to the authenticated client
	if record.ClientID != client.ClientID || verified.ClientID != client.ClientID {
		s.recordRefresh(false)
		return nil, ErrInvalidGrant
	}

	// 4. Reuse detection: a revoked (rotated) token presented again kills
	// the whole family.
	if record.Revoked {
		s.recordRefresh(false)
		s.handleRefreshReuse(ctx, record)
		return nil, ErrInvalidGrant
	}
	if record.IsExpired() {
		s.recordRefresh(false)
		return nil, ErrInvalidGrant
	}

	// 5. Scope narrowing only, never widening
	scopes := record.Scopes
	if g.Scope != "" {
		if !token.NewScopeSet(record.Scopes).ContainsAll(token.ParseScopes(g.Scope)) {
			s.recordRefresh(false)
			return nil, ErrInvalidScope
		}
		scopes = g.Scope
	}

	resp, err := s.issueTokenPair(ctx, client, record.UserID, scopes, issueContext{
		grantType:       GrantTypeRefreshToken,
		previousTokenID: record.ID,
		rotatedFrom:     record,
	})
	if err != nil {
		s.recordRefresh(false)
		return nil, err
	}

	s.recordRefresh(true)
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventTokenRefreshed,
			Severity:      models.SeverityInfo,
			ActorUserID:   record.UserID,
			ActorClientID: client.ClientID,
			ResourceType:  models.ResourceToken,
			ResourceID:    resp.RefreshToken.ID,
			Action:        "Refresh token rotated",
			Details: models.AuditDetails{
				"client_id":            client.ClientID,
				"scopes":               scopes,
				"old_refresh_token_id": record.ID,
				"new_refresh_token_id": resp.RefreshToken.ID,
			},
			Success: true,
		})
	}

	return resp, nil
}

// handleRefreshReuse revokes the rotation family after a rotated token was
// presented again.
func (s *TokenService) handleRefreshReuse(ctx context.Context, record *models.RefreshToken) {
	count, err := s.store.RevokeRefreshTokenFamily(record.ID)
	if err != nil {
		log.Printf("[Token] Family revocation failed for token=%s: %v", record.ID, err)
		return
	}
	log.Printf("[Token] Refresh token reuse detected for token=%s, revoked %d descendants",
		record.ID, count)

	if s.metrics != nil {
		s.metrics.RecordTokenRevoked("refresh", "reuse_detected")
	}
	if s.auditService != nil {
		_ = s.auditService.LogSync(ctx, AuditLogEntry{
			EventType:     models.EventSuspiciousActivity,
			Severity:      models.SeverityCritical,
			ActorUserID:   record.UserID,
			ActorClientID: record.ClientID,
			ResourceType:  models.ResourceToken,
			ResourceID:    record.ID,
			Action:        "Rotated refresh token reused, token family revoked",
			Details: models.AuditDetails{
				"client_id":     record.ClientID,
				"revoked_count": count,
			},
			Success: true,
		})
	}
}

// issueClientCredentialsToken issues a machine access token for the client
// itself (RFC 6749 §4.4). Confidential clients only; no refresh token, no
// user subject.
func (s *TokenService) issueClientCredentialsToken(
	ctx context.Context,
	client *models.Client,
	g ClientCredentialsGrant,
) (*TokenResponse, error) {
	if client.IsPublic() {
		return nil, ErrUnauthorizedClient
	}

	// Resolve effective scopes
	effectiveScopes := g.Scope
	if effectiveScopes == "" {
		effectiveScopes = client.Scopes
	} else {
		// User-centric OIDC scopes are meaningless without a user
		for _, scope := range token.ParseScopes(effectiveScopes) {
			if scope == token.ScopeOpenID || scope == token.ScopeOfflineAccess {
				return nil, ErrInvalidScope
			}
		}
		if !token.NewScopeSet(client.Scopes).ContainsAll(token.ParseScopes(effectiveScopes)) {
			return nil, ErrInvalidScope
		}
	}

	start := time.Now()
	scopeList := token.ParseScopes(effectiveScopes)
	permissions, err := s.resolver.ResolvePermissions(ctx, "", client.ClientID, scopeList)
	if err != nil {
		return nil, fmt.Errorf("permission resolution failed: %w", err)
	}

	// Empty subject marks a machine token
	accessResult, err := s.signer.SignAccessToken(
		"", client.ClientID, effectiveScopes, permissions, s.accessTokenTTL(client))
	if err != nil {
		return nil, fmt.Errorf("token generation failed: %w", err)
	}

	accessToken := &models.AccessToken{
		ID:        uuid.New().String(),
		TokenHash: util.SHA256Hex(accessResult.TokenString),
		RawToken:  accessResult.TokenString,
		JTI:       accessResult.JTI,
		TokenType: accessResult.TokenType,
		UserID:    "",
		ClientID:  client.ClientID,
		Scopes:    effectiveScopes,
		ExpiresAt: accessResult.ExpiresAt,
	}

	if err := s.store.CreateAccessToken(accessToken); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenIssued("access", GrantTypeClientCredentials, time.Since(start))
	}
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventClientCredentialsTokenIssued,
			Severity:      models.SeverityInfo,
			ActorClientID: client.ClientID,
			ResourceType:  models.ResourceToken,
			ResourceID:    accessToken.ID,
			Action:        "Access token issued via client credentials grant",
			Details: models.AuditDetails{
				"client_id": client.ClientID,
				"scopes":    effectiveScopes,
				"jti":       accessToken.JTI,
			},
			Success: true,
		})
	}

	return &TokenResponse{
		AccessToken: accessToken,
		Scope:       effectiveScopes,
		ExpiresIn:   int64(time.Until(accessResult.ExpiresAt).Seconds()),
	}, nil
}

func (s *TokenService) recordRefresh(success bool) {
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(success)
	}
}

func (s *TokenService) accessTokenTTL(client *models.Client) time.Duration {
	if client.AccessTokenTTL > 0 {
		return client.AccessTokenTTL
	}
	return s.config.AccessTokenTTL
}

func (s *TokenService) refreshTokenTTL(client *models.Client) time.Duration {
	if client.RefreshTokenTTL > 0 {
		return client.RefreshTokenTTL
	}
	return s.config.RefreshTokenTTL
}
